package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Joseda-hg/taskboard/internal/web"
)

func serveCmd(flags *globalFlags) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve a read-only web view of the task board",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(*flags)
			if err != nil {
				return err
			}
			defer a.Close()

			server := &http.Server{
				Addr:              addr,
				Handler:           web.NewServer(a.session, a.account, a.client, a.logger.Named("web")).Handler(),
				ReadHeaderTimeout: 10 * time.Second,
			}
			return serve(cmd.Context(), server, a.logger, func(format string, args ...any) {
				fmt.Fprintf(cmd.OutOrStdout(), format, args...)
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8765", "listen address")
	return cmd
}

func serve(ctx context.Context, server *http.Server, logger *zap.Logger, printf func(string, ...any)) error {
	errs := make(chan error, 1)
	go func() {
		errs <- server.ListenAndServe()
	}()
	printf("Web view running at http://%s\n", server.Addr)
	logger.Info("web server started", zap.String("addr", server.Addr))

	select {
	case err := <-errs:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	logger.Info("web server stopping")
	return server.Shutdown(shutdownCtx)
}
