package message

import (
	"bytes"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func capture(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	SetOutput(&buf)
	SetNoColor(true)
	t.Cleanup(func() {
		SetOutput(os.Stdout)
		SetQuiet(false)
	})
	return &buf
}

func TestQuietKeepsErrors(t *testing.T) {
	buf := capture(t)
	SetQuiet(true)

	Info("scanning %s", "users")
	Success("done")
	Error("scan %s failed", "groups")

	assert.Equal(t, "[-] scan groups failed\n", buf.String())
}

func TestTable(t *testing.T) {
	buf := capture(t)

	Table([]string{"TYPE", "STATE"}, [][]string{
		{"users", "completed"},
		{"exchangeMailboxes", "idle"},
	})

	assert.Equal(t,
		"TYPE               STATE\n"+
			"users              completed\n"+
			"exchangeMailboxes  idle\n",
		buf.String())
}
