package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Brownie44l1/leafcheck/internal/classifier"
	"github.com/Brownie44l1/leafcheck/internal/config"
	"github.com/Brownie44l1/leafcheck/internal/handlers"
	"github.com/Brownie44l1/leafcheck/internal/service"
	"github.com/Brownie44l1/leafcheck/internal/store"
	"github.com/Brownie44l1/leafcheck/internal/uploads"
	"github.com/go-logr/logr"
	"github.com/go-logr/stdr"
	gorillahandlers "github.com/gorilla/handlers"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const ErrExitCode = 1

func main() {
	if err := NewServerCmd().Execute(); err != nil {
		fmt.Println(err.Error())
		os.Exit(ErrExitCode)
	}
}

func NewServerCmd() *cobra.Command {
	options := config.DefaultOptions()
	var configFile string
	var verbosity int

	cmd := &cobra.Command{
		Use:   "leafcheck",
		Short: "tomato leaf disease detection server",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			// file < env < flags: re-apply flags the user actually set
			flags := *options
			if configFile != "" {
				if err := options.LoadFile(configFile); err != nil {
					return err
				}
			}
			if err := options.LoadEnv(); err != nil {
				return err
			}
			restoreChangedFlags(cmd, options, &flags)
			return options.Validate()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			log.SetFlags(log.LstdFlags | log.Lshortfile)
			stdr.SetVerbosity(verbosity)
			logger := stdr.NewWithOptions(log.Default(), stdr.Options{LogCaller: stdr.Error})
			ctx = logr.NewContext(ctx, logger)

			return Run(ctx, options)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&configFile, "config", "c", "", "yaml config file")
	flags.IntVarP(&verbosity, "verbose", "v", 0, "log verbosity")
	flags.StringVar(&options.Listen, "listen", options.Listen, "listen address")
	flags.StringVar(&options.Model.Path, "model", options.Model.Path, "model file (.onnx or .tflite)")
	flags.StringVar(&options.Model.MetadataPath, "model-metadata", options.Model.MetadataPath, "model metadata json")
	flags.StringVar(&options.Model.SharedLibrary, "onnxruntime-lib", options.Model.SharedLibrary, "onnxruntime shared library")
	flags.IntVar(&options.Model.Threads, "model-threads", options.Model.Threads, "tflite interpreter threads")
	flags.StringVar(&options.UploadDir, "upload-dir", options.UploadDir, "directory for uploaded images")
	flags.StringVar(&options.DBPath, "db", options.DBPath, "detection history database, empty to disable")
	flags.Int64Var(&options.MaxUploadBytes, "max-upload", options.MaxUploadBytes, "max upload size in bytes")
	flags.DurationVar(&options.ClassifyTimeout, "classify-timeout", options.ClassifyTimeout, "per image classification timeout, 0 to disable")
	flags.StringSliceVar(&options.AllowedOrigins, "allowed-origins", options.AllowedOrigins, "CORS allowed origins")
	return cmd
}

func restoreChangedFlags(cmd *cobra.Command, options, flagged *config.Options) {
	changed := cmd.Flags().Changed
	if changed("listen") {
		options.Listen = flagged.Listen
	}
	if changed("model") {
		options.Model.Path = flagged.Model.Path
	}
	if changed("model-metadata") {
		options.Model.MetadataPath = flagged.Model.MetadataPath
	}
	if changed("onnxruntime-lib") {
		options.Model.SharedLibrary = flagged.Model.SharedLibrary
	}
	if changed("model-threads") {
		options.Model.Threads = flagged.Model.Threads
	}
	if changed("upload-dir") {
		options.UploadDir = flagged.UploadDir
	}
	if changed("db") {
		options.DBPath = flagged.DBPath
	}
	if changed("max-upload") {
		options.MaxUploadBytes = flagged.MaxUploadBytes
	}
	if changed("classify-timeout") {
		options.ClassifyTimeout = flagged.ClassifyTimeout
	}
	if changed("allowed-origins") {
		options.AllowedOrigins = flagged.AllowedOrigins
	}
}

func Run(ctx context.Context, opts *config.Options) error {
	log := logr.FromContextOrDiscard(ctx)

	pipeline := classifier.Load(opts.Model, log.WithName("classifier"))
	defer pipeline.Close()

	storage, err := uploads.New(opts.UploadDir)
	if err != nil {
		return err
	}

	var history service.History
	if opts.DBPath != "" {
		db, err := store.Open(opts.DBPath)
		if err != nil {
			return err
		}
		defer db.Close()
		history = db
	} else {
		log.Info("detection history disabled")
	}

	detector := service.NewDetectorService(pipeline, history, storage, opts.ClassifyTimeout)
	handler := handlers.NewHandler(detector, storage, opts.MaxUploadBytes)

	var router http.Handler = handler.Routes()
	router = gorillahandlers.CORS(
		gorillahandlers.AllowedOrigins(opts.AllowedOrigins),
		gorillahandlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions}),
		gorillahandlers.AllowedHeaders([]string{"Content-Type", handlers.UserHeader}),
	)(router)
	router = gorillahandlers.CombinedLoggingHandler(os.Stdout, router)

	server := http.Server{
		Addr:              opts.Listen,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(l net.Listener) context.Context {
			return ctx
		},
	}

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	eg.Go(func() error {
		log.Info("server listening", "http", opts.Listen, "model", opts.Model.Path, "ready", pipeline.Ready())
		if pipeline.Ready() {
			labels := make([]string, 0, len(pipeline.Labels()))
			for _, l := range pipeline.Labels() {
				labels = append(labels, l.Label)
			}
			log.Info("classes", "labels", labels)
		}
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	return eg.Wait()
}
