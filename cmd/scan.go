package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/praetorian-inc/tenantscan/internal/message"
	"github.com/praetorian-inc/tenantscan/pkg/m365/auth"
	"github.com/praetorian-inc/tenantscan/pkg/m365/models"
)

var scanCmd = &cobra.Command{
	Use:   "scan <type>",
	Short: "Start an inventory scan of one resource type",
	Long: `Start an inventory scan of one resource type.

With --wait the scan runs in this process and the command returns when it
finishes. Without it the scan is submitted to a running "tenantscan serve"
at --server and the command returns immediately.

Power Apps and Power Automate scans need a delegated token, given either
directly with --access-token or as a refresh token with --refresh-token.`,
	Args:      cobra.ExactArgs(1),
	ValidArgs: resourceTypeNames(),
	RunE:      runScan,
}

var statusCmd = &cobra.Command{
	Use:   "status [type]",
	Short: "Show scan status for one or every resource type",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), appOptions{})
		if err != nil {
			return err
		}
		defer a.Close()

		var jobs []models.ScanJob
		if len(args) == 1 {
			rt, err := models.ParseResourceType(args[0])
			if err != nil {
				return err
			}
			job, err := a.orch.Status(cmd.Context(), rt)
			if err != nil {
				return err
			}
			jobs = append(jobs, job)
		} else if jobs, err = a.orch.StatusAll(cmd.Context()); err != nil {
			return err
		}
		printJobs(jobs)
		return nil
	},
}

func init() {
	flags := scanCmd.Flags()
	flags.Bool("wait", false, "run the scan in-process and wait for it to finish")
	flags.Bool("recover", false, "first mark scans left running by a crashed process as failed")
	flags.String("access-token", "", "delegated access token for Power Platform scans")
	flags.String("refresh-token", "", "refresh token redeemed for a Power Platform access token")
	flags.String("server", "http://localhost:8080", "tenantscan API to submit to when not waiting")
	scanCmd.MarkFlagsMutuallyExclusive("access-token", "refresh-token")

	rootCmd.AddCommand(scanCmd, statusCmd)
}

func resourceTypeNames() []string {
	var names []string
	for _, rt := range models.AllResourceTypes() {
		names = append(names, rt.String())
	}
	return names
}

func runScan(cmd *cobra.Command, args []string) error {
	rt, err := models.ParseResourceType(args[0])
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	wait, _ := flags.GetBool("wait")
	recoverJobs, _ := flags.GetBool("recover")
	serverURL, _ := flags.GetString("server")

	token, err := delegatedToken(cmd)
	if err != nil {
		return err
	}

	if !wait {
		job, err := submitScan(cmd.Context(), serverURL, rt, token)
		if err != nil {
			return err
		}
		message.Success("Submitted %s scan to %s", job.ResourceType, serverURL)
		return nil
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, appOptions{recover: recoverJobs})
	if err != nil {
		return err
	}
	defer a.Close()

	if _, err := a.orch.Start(ctx, rt, token); err != nil {
		return err
	}
	message.Info("Scanning %s", rt)

	done := make(chan struct{})
	go func() {
		a.orch.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		message.Warning("Interrupted, stopping %s scan", rt)
		a.cancel()
		<-done
	}

	job, err := a.orch.Status(context.WithoutCancel(ctx), rt)
	if err != nil {
		return err
	}
	printJobs([]models.ScanJob{job})
	if job.State == models.ScanStateFailed {
		return fmt.Errorf("%s scan failed", rt)
	}
	return nil
}

// delegatedToken resolves the token passed to Power Platform scans. A
// refresh token is redeemed against the configured app registration.
func delegatedToken(cmd *cobra.Command) (string, error) {
	if token, _ := cmd.Flags().GetString("access-token"); token != "" {
		return token, nil
	}
	refresh, _ := cmd.Flags().GetString("refresh-token")
	if refresh == "" {
		return "", nil
	}
	exchange := auth.RefreshExchange{
		TenantID: viper.GetString("azure.tenant_id"),
		ClientID: viper.GetString("azure.client_id"),
	}
	return exchange.AccessToken(cmd.Context(), refresh, auth.PowerPlatformScope)
}

type apiError struct {
	Error string `json:"error"`
}

// submitScan starts a scan on a running API server.
func submitScan(ctx context.Context, serverURL string, rt models.ResourceType, token string) (models.ScanJob, error) {
	body, err := json.Marshal(map[string]string{
		"dataType":    rt.String(),
		"accessToken": token,
	})
	if err != nil {
		return models.ScanJob{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(serverURL, "/")+"/api/scan", bytes.NewReader(body))
	if err != nil {
		return models.ScanJob{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return models.ScanJob{}, fmt.Errorf("failed to reach %s (is `tenantscan serve` running? use --wait to scan in-process): %w", serverURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		var apiErr apiError
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err != nil || apiErr.Error == "" {
			return models.ScanJob{}, fmt.Errorf("server returned %s", resp.Status)
		}
		return models.ScanJob{}, errors.New(apiErr.Error)
	}

	var job models.ScanJob
	if err := json.NewDecoder(resp.Body).Decode(&job); err != nil {
		return models.ScanJob{}, fmt.Errorf("invalid server response: %w", err)
	}
	return job, nil
}

func printJobs(jobs []models.ScanJob) {
	rows := make([][]string, 0, len(jobs))
	for _, j := range jobs {
		rows = append(rows, []string{
			j.ResourceType.String(),
			string(j.State),
			formatTime(j.StartedAt),
			formatTime(j.CompletedAt),
			deref(j.Error),
		})
	}
	message.Table([]string{"TYPE", "STATE", "STARTED", "COMPLETED", "ERROR"}, rows)
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Local().Format(time.DateTime)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
