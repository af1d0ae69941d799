package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"foodbridge/internal/app"
	"foodbridge/internal/server"
)

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		Long:  "Serves the donation pipeline over HTTP. Bearer tokens are HS256 JWTs signed with FOODBRIDGE_JWT_SECRET; API keys from fb key create work too.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			secret := viper.GetString("jwt-secret")
			if secret == "" {
				return fmt.Errorf("FOODBRIDGE_JWT_SECRET is required for bearer auth")
			}
			return withRuntime(ctx, func(ctx context.Context, rt *app.Runtime) error {
				log := rt.Engine.Log
				rt.Monitor.Start(ctx)
				server.StartWebhooks(ctx, rt.Engine, log)
				handler, err := server.New(server.Config{
					Engine:   rt.Engine,
					BasePath: viper.GetString("base-path"),
					Net:      rt.Monitor,
					Auth: server.AuthConfig{
						JWTSecret:              secret,
						TokenTTL:               viper.GetDuration("token-ttl"),
						AllowDevLogin:          viper.GetBool("dev-login"),
						AllowLegacyActorHeader: viper.GetBool("legacy-actor-header"),
						Logger:                 log,
					},
				})
				if err != nil {
					return err
				}
				addr := viper.GetString("addr")
				srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
				go func() {
					<-ctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					srv.Shutdown(shutdownCtx)
				}()
				log.Info("serving FoodBridge API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)", addr, viper.GetString("base-path"), viper.GetString("base-path"))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().String("addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().String("base-path", "/v0", "API base path")
	cmd.Flags().String("jwt-secret", "", "HS256 secret (prefer FOODBRIDGE_JWT_SECRET)")
	cmd.Flags().Duration("token-ttl", 12*time.Hour, "lifetime of dev login tokens")
	cmd.Flags().Bool("dev-login", false, "expose POST /auth/dev/login")
	cmd.Flags().Bool("legacy-actor-header", false, "trust X-Actor-Id without credentials")
	for _, name := range []string{"addr", "base-path", "jwt-secret", "token-ttl", "dev-login", "legacy-actor-header"} {
		_ = viper.BindPFlag(name, cmd.Flags().Lookup(name))
	}
	return cmd
}
