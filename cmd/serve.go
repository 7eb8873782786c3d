package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/analytics"
	"github.com/sells-group/outreach-cli/internal/cache"
	"github.com/sells-group/outreach-cli/internal/scrape"
	"github.com/sells-group/outreach-cli/pkg/gmail"
	"github.com/sells-group/outreach-cli/pkg/serp"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the webhook server",
	Long: `Serve webhook endpoints for scrape requests and inbound reply
notifications, plus a read-only analytics endpoint.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		search := serp.NewClient(cfg.Serp.Key,
			serp.WithBaseURL(cfg.Serp.BaseURL),
			serp.WithEngine(cfg.Serp.Engine),
			serp.WithMaxPages(cfg.Serp.MaxPages),
			serp.WithRateLimit(cfg.Serp.RequestsPerSec),
		)
		scraper := scrape.New(st, cache.New(st), search, newCostTracker(), cfg.Scrape)
		manager, err := newCampaignManager(st)
		if err != nil {
			return err
		}
		aggregator := analytics.New(st)

		r := chi.NewRouter()
		r.Use(middleware.RequestID)
		r.Use(middleware.Recoverer)
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "POST"},
			AllowedHeaders: []string{"Accept", "Content-Type"},
		}))

		r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})

		r.Post("/webhook/scrape", func(w http.ResponseWriter, req *http.Request) {
			var body struct {
				Query    string `json:"query"`
				Location string `json:"location"`
			}
			if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
				return
			}
			if body.Query == "" || body.Location == "" {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "query and location are required"})
				return
			}

			// Scrapes take minutes; run in the background and report
			// through logs, mirroring the CLI command.
			go func() {
				summary, err := scraper.Run(ctx, body.Query, body.Location)
				if err != nil {
					zap.L().Error("webhook scrape failed",
						zap.String("query", body.Query),
						zap.Error(err))
					return
				}
				zap.L().Info("webhook scrape complete",
					zap.String("query", body.Query),
					zap.String("summary", summary.String()))
			}()

			writeJSON(w, http.StatusAccepted, map[string]string{
				"status": "accepted",
				"query":  body.Query,
			})
		})

		r.Post("/webhook/reply", func(w http.ResponseWriter, req *http.Request) {
			var body struct {
				MessageID   string `json:"message_id"`
				FromAddress string `json:"from_address"`
				Subject     string `json:"subject"`
				Snippet     string `json:"snippet"`
			}
			if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
				return
			}
			if body.FromAddress == "" {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "from_address is required"})
				return
			}

			matched, err := manager.ProcessInbound(req.Context(), gmail.InboundMessage{
				MessageID:   body.MessageID,
				FromAddress: gmail.ExtractAddress(body.FromAddress),
				Subject:     body.Subject,
				Snippet:     body.Snippet,
			})
			if err != nil {
				zap.L().Error("webhook reply failed", zap.Error(err))
				writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "reply processing failed"})
				return
			}
			writeJSON(w, http.StatusOK, map[string]bool{"matched": matched})
		})

		r.Get("/analytics/{day}", func(w http.ResponseWriter, req *http.Request) {
			day, err := time.Parse("2006-01-02", chi.URLParam(req, "day"))
			if err != nil {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "day must be YYYY-MM-DD"})
				return
			}
			report, err := aggregator.ComputeDay(req.Context(), day)
			if err != nil {
				zap.L().Error("analytics compute failed", zap.Error(err))
				writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "analytics failed"})
				return
			}
			writeJSON(w, http.StatusOK, report)
		})

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}
		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           r,
			ReadHeaderTimeout: 10 * time.Second,
		}

		errCh := make(chan error, 1)
		go func() {
			zap.L().Info("webhook server listening", zap.Int("port", port))
			errCh <- srv.ListenAndServe()
		}()

		select {
		case <-ctx.Done():
		case err := <-errCh:
			return eris.Wrap(err, "serve: listen")
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return eris.Wrap(srv.Shutdown(shutdownCtx), "serve: shutdown")
	},
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "listen port (overrides config)")
	rootCmd.AddCommand(serveCmd)
}
