package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/aridetect/aridetect/internal/config"
	"github.com/aridetect/aridetect/internal/domain/analysis"
	"github.com/aridetect/aridetect/internal/domain/patient"
	"github.com/aridetect/aridetect/internal/platform/api"
	"github.com/aridetect/aridetect/internal/platform/auth"
	"github.com/aridetect/aridetect/internal/report"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "ari",
		Short: "ARI Detect clinician client",
	}

	rootCmd.AddCommand(loginCmd())
	rootCmd.AddCommand(logoutCmd())
	rootCmd.AddCommand(whoamiCmd())
	rootCmd.AddCommand(patientsCmd())
	rootCmd.AddCommand(analyzeCmd())
	rootCmd.AddCommand(historyCmd())
	rootCmd.AddCommand(reportCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// app bundles the wired client components for one command invocation.
type app struct {
	cfg    *config.Config
	logger zerolog.Logger
	store  auth.Store
	client *api.Client
}

func newApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(level).
		With().Timestamp().Logger()

	store := auth.NewFileStore(cfg.TokenFile)

	// Timeouts are enforced per call via context so uploads can outlive the
	// regular request budget.
	client, err := api.NewClient(cfg.APIBaseURL, store,
		api.WithHTTPClient(&http.Client{}),
		api.WithLogger(logger),
		api.WithMaxUploadBytes(cfg.MaxUploadBytes),
	)
	if err != nil {
		return nil, err
	}

	return &app{cfg: cfg, logger: logger, store: store, client: client}, nil
}

func (a *app) requestCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), a.cfg.HTTPTimeout)
}

// stderrNotifier surfaces the workflow's ephemeral notices on the terminal.
type stderrNotifier struct{}

func (stderrNotifier) Success(msg string) { fmt.Fprintln(os.Stderr, msg) }
func (stderrNotifier) Error(msg string)   { fmt.Fprintln(os.Stderr, "error: "+msg) }

// handshakeLocation rebuilds the navigation location the redirect produced:
// the callback's /dashboard path with the one-time identifier in the
// transient fragment.
func handshakeLocation(addr, sessionID string) *url.URL {
	return &url.URL{
		Scheme:   "http",
		Host:     addr,
		Path:     "/dashboard",
		Fragment: "session_id=" + sessionID,
	}
}

func loginCmd() *cobra.Command {
	var wait time.Duration
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in through the identity provider",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}

			srv, err := auth.NewCallbackServer(a.cfg.CallbackAddr, a.logger)
			if err != nil {
				return fmt.Errorf("start callback listener: %w", err)
			}
			srv.Start()
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()

			loginURL, err := srv.LoginURL(a.cfg.AuthURL)
			if err != nil {
				return err
			}
			fmt.Println("Open this URL in your browser to sign in:")
			fmt.Println("  " + loginURL)

			waitCtx, cancel := context.WithTimeout(context.Background(), wait)
			defer cancel()
			sid, err := srv.Wait(waitCtx)
			if err != nil {
				return fmt.Errorf("no login completed within %s", wait)
			}

			ctx, cancelReq := a.requestCtx()
			defer cancelReq()
			hs := auth.NewHandshake(a.store, a.client, a.logger)
			res := hs.Process(ctx, handshakeLocation(a.cfg.CallbackAddr, sid))
			if res.State != auth.StateAuthenticated {
				return fmt.Errorf("authentication failed, please try again")
			}
			if res.User != nil {
				fmt.Printf("Signed in as %s\n", res.User.Name)
			} else {
				fmt.Println("Signed in")
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&wait, "wait", 5*time.Minute, "how long to wait for the browser login")
	return cmd
}

func logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and clear the local credential",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			ctx, cancel := a.requestCtx()
			defer cancel()
			// Server-side invalidation is best-effort; the local credential
			// is cleared regardless.
			if err := a.client.Logout(ctx); err != nil {
				a.logger.Warn().Err(err).Msg("server logout failed")
			}
			if err := a.store.Clear(); err != nil {
				return err
			}
			fmt.Println("Logged out")
			return nil
		},
	}
}

func whoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in clinician",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			if !auth.NewGuard(a.store).Allow() {
				return fmt.Errorf("not signed in, run 'ari login'")
			}
			ctx, cancel := a.requestCtx()
			defer cancel()
			id, err := a.client.CurrentUser(ctx)
			if err != nil {
				if errors.Is(err, api.ErrUnauthorized) {
					_ = a.store.Clear()
					return fmt.Errorf("session expired, run 'ari login'")
				}
				return err
			}
			fmt.Printf("%s <%s>\n", id.Name, id.Email)
			return nil
		},
	}
}

func patientsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "patients",
		Short: "Manage patient records",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List patient records",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			ctx, cancel := a.requestCtx()
			defer cancel()
			patients, err := a.client.ListPatients(ctx)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tAGE\tGENDER")
			for _, p := range patients {
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", p.ID, p.Name, p.Age, p.Gender)
			}
			return w.Flush()
		},
	}

	var (
		name    string
		age     int
		gender  string
		history string
	)
	addCmd := &cobra.Command{
		Use:   "add",
		Short: "Create a patient record",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			g, err := patient.ParseGender(gender)
			if err != nil {
				return err
			}
			ctx, cancel := a.requestCtx()
			defer cancel()
			p, err := a.client.CreatePatient(ctx, patient.Draft{
				Name: name, Age: age, Gender: g, MedicalHistory: history,
			})
			if err != nil {
				return err
			}
			fmt.Printf("Created patient %s (%s)\n", p.Name, p.ID)
			return nil
		},
	}
	addCmd.Flags().StringVar(&name, "name", "", "patient name (required)")
	addCmd.Flags().IntVar(&age, "age", 0, "patient age (required)")
	addCmd.Flags().StringVar(&gender, "gender", "", "Male, Female or Other (required)")
	addCmd.Flags().StringVar(&history, "history", "", "free-text medical history")
	addCmd.MarkFlagRequired("name")
	addCmd.MarkFlagRequired("age")
	addCmd.MarkFlagRequired("gender")

	cmd.AddCommand(listCmd)
	cmd.AddCommand(addCmd)
	return cmd
}

func analyzeCmd() *cobra.Command {
	var (
		patientID string
		imagePath string
	)
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Submit a chest X-ray for analysis",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			image, err := os.ReadFile(imagePath)
			if err != nil {
				return fmt.Errorf("read image: %w", err)
			}

			ctrl := analysis.NewController(a.client, a.client,
				analysis.WithNotifier(stderrNotifier{}),
				analysis.WithWorkflowLogger(a.logger),
			)
			ctrl.SelectPatient(patientID)
			ctrl.AttachImage(image, imagePath)

			ctx, cancel := context.WithTimeout(context.Background(), a.cfg.UploadTimeout)
			defer cancel()
			if err := ctrl.Submit(ctx); err != nil {
				if errors.Is(err, api.ErrUnauthorized) {
					_ = a.store.Clear()
					return fmt.Errorf("session expired, run 'ari login'")
				}
				return err
			}

			res := ctrl.Result()
			fmt.Printf("Prediction: %s (%s)\n\n", res.Prediction, analysis.FormatConfidence(res.Confidence))
			fmt.Println(res.Report)
			return nil
		},
	}
	cmd.Flags().StringVar(&patientID, "patient", "", "patient identifier (required)")
	cmd.Flags().StringVar(&imagePath, "image", "", "path to the X-ray image (required)")
	cmd.MarkFlagRequired("patient")
	cmd.MarkFlagRequired("image")
	return cmd
}

func historyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history",
		Short: "List past analyses",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			ctx, cancel := a.requestCtx()
			defer cancel()
			analyses, err := a.client.ListAnalyses(ctx)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tPATIENT\tPREDICTION\tCONFIDENCE\tDATE")
			for _, res := range analyses {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					res.ID, res.PatientName, res.Prediction,
					analysis.FormatConfidence(res.Confidence),
					res.CreatedAt.Format("2006-01-02"))
			}
			return w.Flush()
		},
	}
}

func reportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "report <analysis-id>",
		Short: "Export the plain-text report for an analysis",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			ctx, cancel := a.requestCtx()
			defer cancel()
			res, err := a.client.GetAnalysis(ctx, args[0])
			if err != nil {
				return err
			}
			path, err := report.Write(a.cfg.ReportDir, a.cfg.ReportPrefix, res)
			if err != nil {
				return err
			}
			fmt.Printf("Report saved to %s\n", path)
			return nil
		},
	}
}
