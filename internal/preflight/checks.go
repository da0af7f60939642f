package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"golang.org/x/sys/unix"

	"mediadiff/internal/capability"
	"mediadiff/internal/config"
	"mediadiff/internal/deps"
)

// CheckOpenAI verifies that the transcription API is reachable and the key
// is valid. It uses a 30-second timeout and a single attempt.
func CheckOpenAI(ctx context.Context, cfg config.Transcription) Result {
	const name = "OpenAI transcription"
	if strings.TrimSpace(cfg.APIKey) == "" {
		return Result{Name: name, Detail: "API key missing"}
	}

	checkCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := capability.NewOpenAITranscriber(cfg).HealthCheck(checkCtx); err != nil {
		return Result{Name: name, Detail: summarizeError(err)}
	}
	return Result{Name: name, Passed: true, Detail: "API reachable"}
}

// CheckMinIO verifies that the artifact bucket is reachable with the
// configured credentials.
func CheckMinIO(ctx context.Context, cfg config.Artifacts) Result {
	const name = "MinIO artifacts"

	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return Result{Name: name, Detail: "missing endpoint"}
	}
	if strings.TrimSpace(cfg.Bucket) == "" {
		return Result{Name: name, Detail: "missing bucket"}
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("client setup failed (%v)", err)}
	}

	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	exists, err := client.BucketExists(checkCtx, cfg.Bucket)
	if err != nil {
		return Result{Name: name, Detail: summarizeError(err)}
	}
	if !exists {
		return Result{Name: name, Passed: true, Detail: fmt.Sprintf("bucket %q will be created", cfg.Bucket)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("bucket %q reachable", cfg.Bucket)}
}

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	if strings.TrimSpace(path) == "" {
		return Result{Name: name, Detail: "path not configured"}
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckSystemDeps evaluates the external binaries for the given config,
// including the ffmpeg filter set. Both the daemon and the CLI deps command
// use this.
func CheckSystemDeps(ctx context.Context, cfg *config.Config) []deps.Status {
	statuses := deps.CheckBinaries(deps.Requirements(cfg))
	return append(statuses, deps.CheckFFmpegFilters(ctx, cfg.FFmpegBinary()))
}

func summarizeError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "health check timed out (service unresponsive)"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "health check timed out (service unreachable)"
	}
	return err.Error()
}
