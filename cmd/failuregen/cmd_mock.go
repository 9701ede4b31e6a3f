package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/curbz/failure-niner/internal/mockserver"
)

func newMockCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mock",
		Short: "Serve a fake X-Plane Web API for trying out generators without the simulator",
		RunE: func(cmd *cobra.Command, args []string) error {
			port, _ := cmd.Flags().GetString("port")
			takeoff, _ := cmd.Flags().GetBool("takeoff")

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			mock, srv := mockserver.Start(port)
			if takeoff {
				go mock.FlyTakeOff(ctx, 250*time.Millisecond)
			}
			<-ctx.Done()

			log.Println("mockserver: shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}
	cmd.Flags().String("port", "8086", "Listen port")
	cmd.Flags().Bool("takeoff", false, "Fly a takeoff and climb out")
	return cmd
}
