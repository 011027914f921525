package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"filedepot/audit"
	"filedepot/auth"
	"filedepot/blob"
	"filedepot/files"
	"filedepot/fsio"
	"filedepot/handlers"
	"filedepot/metrics"
	"filedepot/scale"
	"filedepot/storage"
	"filedepot/store"

	"github.com/alecthomas/kong"
	"github.com/dustin/go-humanize"
)

type Globals struct {
	Verbose bool `help:"Enable verbose logging" short:"v" default:"false"`
}

type CLI struct {
	Globals
	Version VersionCmd `cmd:"" help:"Show version information"`
	Serve   ServeCmd   `cmd:"" help:"Start the filedepot server"`
	Token   TokenCmd   `cmd:"" help:"Create a JWT from your SSH keys for authenticating to a filedepot server"`
}

var Version = "dev"

type VersionCmd struct{}

func (cmd *VersionCmd) Run(globals *Globals) error {
	fmt.Printf("%s", Version)
	return nil
}

type ServeCmd struct {
	DatabaseType     string        `help:"Choice of metadata database (sqlite, rqlite or postgres)" default:"sqlite" enum:"sqlite,rqlite,postgres" env:"FILEDEPOT_DATABASE_TYPE"`
	DatabaseURL      string        `help:"Metadata database connection URL" default:"file:filedepot/filedepot.db?mode=rwc" env:"FILEDEPOT_DATABASE_URL"`
	BlobDatabaseURL  string        `help:"Postgres connection URL for large object content (required for the database backend)" env:"FILEDEPOT_BLOB_DATABASE_URL"`
	StorageBackend   string        `help:"Backend for file content (database, filesystem or amazon)" default:"database" enum:"database,filesystem,amazon" env:"FILEDEPOT_STORAGE_BACKEND"`
	PrimaryPath      string        `help:"Primary filesystem storage root" env:"FILEDEPOT_PRIMARY_PATH"`
	FailoverPath     string        `help:"Failover filesystem storage root" env:"FILEDEPOT_FAILOVER_PATH"`
	FailoverWritable bool          `help:"Allow writes to fail over to the failover root" default:"false" env:"FILEDEPOT_FAILOVER_WRITABLE"`
	MaxUploadSize    string        `help:"Maximum upload size" default:"5MB" env:"FILEDEPOT_MAX_UPLOAD_SIZE"`
	IOWorkers        int           `help:"Number of filesystem I/O workers" default:"32" env:"FILEDEPOT_IO_WORKERS"`
	IOTimeout        time.Duration `help:"Hard ceiling for a single filesystem operation" default:"10s" env:"FILEDEPOT_IO_TIMEOUT"`
	ListenAddr       string        `help:"Address to listen on" default:":8080" env:"FILEDEPOT_LISTEN_ADDR"`
	MetricsAddr      string        `help:"Address to serve Prometheus metrics on (empty to disable)" env:"FILEDEPOT_METRICS_ADDR"`
	AuthFile         string        `help:"Path to SSH public keys auth file (format: r/w tenant-or-* ssh-key comment)" env:"FILEDEPOT_AUTH_FILE"`
}

func (cmd *ServeCmd) Run(globals *Globals) error {
	opts := &slog.HandlerOptions{}
	if globals.Verbose {
		opts.Level = slog.LevelDebug
	}
	log := slog.New(slog.NewJSONHandler(os.Stderr, opts))

	backend, err := files.ParseBackend(cmd.StorageBackend)
	if err != nil {
		return err
	}
	maxUploadBytes, err := humanize.ParseBytes(cmd.MaxUploadSize)
	if err != nil {
		return fmt.Errorf("invalid max upload size %q: %w", cmd.MaxUploadSize, err)
	}

	ctx := context.Background()

	kvStore, closer, err := store.New(ctx, cmd.DatabaseType, cmd.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer closer()

	// The blob store holds database-backed content. It is also connected for
	// other backends when a URL is given, so previously stored database-backed
	// records stay readable after a backend switch.
	var blobs *blob.Store
	if cmd.BlobDatabaseURL != "" {
		var blobCloser func() error
		blobs, blobCloser, err = blob.Connect(ctx, cmd.BlobDatabaseURL)
		if err != nil {
			return err
		}
		defer blobCloser()
	}
	if backend == files.BackendDatabase && blobs == nil {
		return fmt.Errorf("the database storage backend requires --blob-database-url")
	}

	var authConfig *auth.AuthConfig
	if cmd.AuthFile != "" {
		authConfig, err = auth.LoadAuthConfig(cmd.AuthFile)
		if err != nil {
			return fmt.Errorf("failed to load auth config: %w", err)
		}
		log.Info("loaded authentication configuration", slog.String("authFile", cmd.AuthFile), slog.Int("keys", len(authConfig.Keys)), slog.Bool("requireAuthForRead", authConfig.RequireAuthForRead))
	}

	m, err := metrics.New()
	if err != nil {
		return fmt.Errorf("failed to initialize metrics: %w", err)
	}
	if cmd.MetricsAddr != "" {
		go func() {
			if err := metrics.ListenAndServe(cmd.MetricsAddr); err != nil {
				log.Error("metrics server failed", slog.Any("error", err))
			}
		}()
	}

	primaryRoot := cmd.PrimaryPath
	if primaryRoot == "" {
		primaryRoot = filepath.Join(os.TempDir(), "filedepot")
	}
	failoverRoot := cmd.FailoverPath
	if failoverRoot == "" {
		failoverRoot = primaryRoot + "-failover"
	}

	exec := fsio.New(log, cmd.IOWorkers, cmd.IOTimeout)
	defer exec.Close()

	fs := storage.NewFilesystem(log, exec, m, primaryRoot, failoverRoot, cmd.FailoverWritable)
	router := storage.NewRouter(log, backend, fs, blobs)
	db := files.NewDB(kvStore, blobs)
	scaler := scale.New(log, router, fs)
	auditLog := audit.New(kvStore)
	recorder, shutdownRecorder := audit.NewRecorder(ctx, log, auditLog, m, 256)
	defer func() {
		if err := shutdownRecorder(5 * time.Second); err != nil {
			log.Warn("audit recorder did not drain", slog.Any("error", err))
		}
	}()

	s := http.Server{
		Addr:    cmd.ListenAddr,
		Handler: handlers.New(log, db, router, fs, scaler, auditLog, recorder, m, authConfig, int64(maxUploadBytes)),
	}
	log.Info("starting server", slog.String("addr", cmd.ListenAddr), slog.String("backend", string(backend)), slog.String("primaryPath", primaryRoot), slog.String("failoverPath", failoverRoot), slog.Bool("failoverWritable", cmd.FailoverWritable))
	return s.ListenAndServe()
}

type TokenCmd struct{}

func (cmd *TokenCmd) Run(globals *Globals) error {
	opts := &slog.HandlerOptions{}
	if globals.Verbose {
		opts.Level = slog.LevelDebug
	}
	log := slog.New(slog.NewJSONHandler(os.Stderr, opts))

	token, err := auth.TokenFromSSHKeys(log)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}

func main() {
	cli := CLI{}
	ctx := kong.Parse(&cli,
		kong.Name("filedepot"),
		kong.Description("A resilient file store with failover filesystem storage and database-backed content."),
		kong.UsageOnError(),
	)
	err := ctx.Run(&cli.Globals)
	ctx.FatalIfErrorf(err)
}
