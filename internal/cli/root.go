// Package cli implements biomatchctl, a command line client for the biomatch
// HTTP API.
package cli

import (
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/okian/biomatch/internal/client"
)

// Version is the biomatchctl version.
const Version = "0.1.0"

const (
	envServer      = "BIOMATCH_SERVER"
	defaultServer  = "http://localhost:9080"
	defaultTimeout = 60 * time.Second
)

// options holds the persistent flags shared by every subcommand.
type options struct {
	server  string
	timeout time.Duration
}

func (o *options) client() (*client.Client, error) {
	return client.New(o.server, client.WithTimeout(o.timeout))
}

// NewRootCommand builds the biomatchctl command tree writing to out.
func NewRootCommand(out io.Writer) *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:           "biomatchctl",
		Short:         "Enroll identities and verify attendance against a biomatch server",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)
	root.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	server := os.Getenv(envServer)
	if server == "" {
		server = defaultServer
	}
	root.PersistentFlags().StringVar(&opts.server, "server", server, "biomatch API base URL (env "+envServer+")")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", defaultTimeout, "per-request timeout")

	root.AddCommand(
		newEnrollCommand(opts),
		newReenrollCommand(opts),
		newVerifyCommand(opts),
		newIdentitiesCommand(opts),
		newAttendanceCommand(opts),
		newThresholdCommand(opts),
		newLoadTestCommand(opts),
	)
	return root
}

// readImage loads a capture from disk as base64 for the API.
func readImage(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("image path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read image: %w", err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

func readCaptures(eyePath, thumbPath string) (string, string, error) {
	eye, err := readImage(eyePath)
	if err != nil {
		return "", "", fmt.Errorf("eye: %w", err)
	}
	thumb, err := readImage(thumbPath)
	if err != nil {
		return "", "", fmt.Errorf("thumb: %w", err)
	}
	return eye, thumb, nil
}

func addCaptureFlags(cmd *cobra.Command, eye, thumb *string) {
	cmd.Flags().StringVar(eye, "eye", "", "path to the face capture")
	cmd.Flags().StringVar(thumb, "thumb", "", "path to the thumb capture")
	_ = cmd.MarkFlagRequired("eye")
	_ = cmd.MarkFlagRequired("thumb")
}
