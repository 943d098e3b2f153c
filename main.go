package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/tabeth/sqstreams/config"
	"github.com/tabeth/sqstreams/queue"
	"github.com/tabeth/sqstreams/server"
	"github.com/tabeth/sqstreams/store"
	"github.com/tabeth/sqstreams/streams"
)

func main() {
	cfg := config.NewConfig()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCommand(cfg, logger).ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCommand(cfg *config.Config, logger *slog.Logger) *cobra.Command {
	root := &cobra.Command{
		Use:          "sqstreams",
		Short:        "Carry stream event batches over SQS",
		Long:         "sqstreams maps streams onto a fixed set of SQS queues. It can also serve a local in-memory SQS emulator.",
		SilenceUsage: true,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&cfg.ConnectionString, "connection-string", cfg.ConnectionString, "Service=<region or URL>;AccessKey=<key>;SecretKey=<secret>")
	flags.StringVar(&cfg.ServiceID, "service-id", cfg.ServiceID, "Prefix of every queue name")
	flags.StringVar(&cfg.ProviderName, "provider", cfg.ProviderName, "Provider name, also the logical queue prefix")
	flags.IntVar(&cfg.QueueCount, "queues", cfg.QueueCount, "Number of queues streams are spread over")
	flags.BoolVar(&cfg.Fifo, "fifo", cfg.Fifo, "Use FIFO queues")
	flags.BoolVar(&cfg.ContentDedup, "content-dedup", cfg.ContentDedup, "Enable content-based deduplication on FIFO queues")
	flags.StringVar(&cfg.FifoGroupID, "fifo-group-id", cfg.FifoGroupID, "MessageGroupId for FIFO messages")

	root.AddCommand(
		newServeCommand(cfg, logger),
		newProduceCommand(cfg, logger),
		newConsumeCommand(cfg, logger),
		newCleanupCommand(cfg, logger),
	)
	return root
}

func newServeCommand(cfg *config.Config, logger *slog.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve an in-memory SQS emulator",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app := &server.App{
				Store:  store.NewMemoryStore(store.WithLogger(logger)),
				Logger: logger,
			}
			srv := &http.Server{
				Addr:    fmt.Sprintf(":%d", cfg.Port),
				Handler: middleware.Logger(server.NewRouter(app)),
			}

			errCh := make(chan error, 1)
			go func() { errCh <- srv.ListenAndServe() }()
			logger.Info("emulator listening", "addr", srv.Addr)

			select {
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			case <-cmd.Context().Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			logger.Info("shutting down emulator")
			return srv.Shutdown(shutdownCtx)
		},
	}
	cmd.Flags().IntVar(&cfg.Port, "port", cfg.Port, "Port for the HTTP server to listen on")
	return cmd
}

// clientOptions returns the provider options and a queue client shared by
// every queue the command touches.
func clientOptions(cfg *config.Config) (*config.Options, queue.API, error) {
	opts := cfg.Options()
	client, err := queue.NewClient(config.ParseConnectionString(opts.ConnectionString))
	if err != nil {
		return nil, nil, err
	}
	return opts, client, nil
}

func newAdapter(cfg *config.Config, logger *slog.Logger) (*streams.Adapter, *streams.HashRingMapper, error) {
	opts, client, err := clientOptions(cfg)
	if err != nil {
		return nil, nil, err
	}
	mapper, err := streams.NewHashRingMapper(cfg.ProviderName, cfg.QueueCount)
	if err != nil {
		return nil, nil, err
	}
	adapter, err := streams.NewAdapter(cfg.ProviderName, cfg.ServiceID, opts, mapper,
		streams.WithLogger(logger),
		streams.WithQueueOptions(queue.WithClient(client)),
	)
	if err != nil {
		return nil, nil, err
	}
	return adapter, mapper, nil
}

func newProduceCommand(cfg *config.Config, logger *slog.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "produce",
		Short: "Send event batches for a stream",
		RunE: func(cmd *cobra.Command, _ []string) error {
			streamArg, _ := cmd.Flags().GetString("stream")
			namespace, _ := cmd.Flags().GetString("namespace")
			count, _ := cmd.Flags().GetInt("count")
			eventArgs, _ := cmd.Flags().GetStringSlice("event")

			streamID := uuid.New()
			if streamArg != "" {
				id, err := uuid.Parse(streamArg)
				if err != nil {
					return fmt.Errorf("invalid --stream: %w", err)
				}
				streamID = id
			}

			adapter, mapper, err := newAdapter(cfg, logger)
			if err != nil {
				return err
			}
			events := make([]any, len(eventArgs))
			for i, e := range eventArgs {
				events[i] = e
			}
			for i := 0; i < count; i++ {
				if err := adapter.QueueMessageBatch(cmd.Context(), streamID, namespace, events, nil, nil); err != nil {
					return err
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "sent %d batches for stream %s to %s\n",
				count, streamID, mapper.QueueForStream(streamID, namespace))
			return nil
		},
	}
	cmd.Flags().String("stream", "", "Stream id (random when empty)")
	cmd.Flags().String("namespace", "default", "Stream namespace")
	cmd.Flags().Int("count", 1, "Number of batches to send")
	cmd.Flags().StringSlice("event", []string{"hello"}, "Events carried by each batch")
	return cmd
}

// consumedBatch is the line printed for each batch read by consume.
type consumedBatch struct {
	StreamID  uuid.UUID `json:"streamId"`
	Namespace string    `json:"namespace"`
	Sequence  int64     `json:"sequence"`
	Events    []any     `json:"events"`
}

func newConsumeCommand(cfg *config.Config, logger *slog.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "consume",
		Short: "Read and acknowledge batches from one queue",
		RunE: func(cmd *cobra.Command, _ []string) error {
			index, _ := cmd.Flags().GetInt("queue-index")
			maxCount, _ := cmd.Flags().GetInt("max")
			polls, _ := cmd.Flags().GetInt("polls")
			ack, _ := cmd.Flags().GetBool("ack")

			adapter, _, err := newAdapter(cfg, logger)
			if err != nil {
				return err
			}
			r, err := adapter.CreateReceiver(streams.QueueID{Prefix: cfg.ProviderName, Index: index})
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if err := r.Initialize(ctx); err != nil {
				return err
			}
			defer r.Shutdown(ctx)

			enc := json.NewEncoder(cmd.OutOrStdout())
			for i := 0; i < polls; i++ {
				batches, err := r.GetQueueMessages(ctx, maxCount)
				if err != nil {
					return err
				}
				if len(batches) == 0 {
					break
				}
				for _, b := range batches {
					if err := enc.Encode(consumedBatch{
						StreamID:  b.StreamID,
						Namespace: b.Namespace,
						Sequence:  b.Token.Sequence(),
						Events:    b.Events,
					}); err != nil {
						return err
					}
				}
				if ack {
					if err := r.MessagesDelivered(ctx, batches); err != nil {
						return err
					}
				}
			}
			return nil
		},
	}
	cmd.Flags().Int("queue-index", 0, "Index of the queue to read")
	cmd.Flags().Int("max", -1, "Batches per read; negative reads as many as one request allows")
	cmd.Flags().Int("polls", 1, "Maximum number of reads; stops early on an empty read")
	cmd.Flags().Bool("ack", true, "Delete batches after printing them")
	return cmd
}

func newCleanupCommand(cfg *config.Config, logger *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Delete every queue the provider can use",
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts, client, err := clientOptions(cfg)
			if err != nil {
				return err
			}
			mapper, err := streams.NewHashRingMapper(cfg.ProviderName, cfg.QueueCount)
			if err != nil {
				return err
			}
			if err := streams.DeleteAllUsedQueues(cmd.Context(), mapper, cfg.ServiceID, opts,
				queue.WithClient(client), queue.WithLogger(logger)); err != nil {
				return err
			}
			logger.Info("deleted queues", "service_id", cfg.ServiceID, "count", cfg.QueueCount)
			return nil
		},
	}
}
