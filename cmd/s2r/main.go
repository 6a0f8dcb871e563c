package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"s2r-gateway/client"

	"golang.org/x/term"
)

const helpText = `s2r - Convert SLURM scripts to Run.ai configurations

Usage:
  s2r <input_file> [output_file]    Convert SLURM script file
  s2r < script.sh                   Read from stdin (piped input)
  cat script.sh | s2r               Read from stdin (piped input)

Examples:
  s2r job.slurm                     Convert and print to stdout
  s2r job.slurm output.yaml         Convert and save to file
  s2r < job.slurm > output.yaml     Using shell redirection

Environment variables:
  S2R_API_ENDPOINT                  Gateway URL
  S2R_SHARED_SECRET                 Shared secret used to sign requests
  S2R_TIMEOUT                       Request timeout (default: 90s)
  S2R_CONFIG                        Config file (default: ~/.config/s2r/config.toml)
`

const usageText = `Usage: s2r [input_file] [output_file]
  No args: read from stdin, write to stdout
  One arg: read from file, write to stdout
  Two args: read from file, write to file
`

// converter é o que o CLI precisa do client (trocável em teste).
type converter interface {
	Convert(ctx context.Context, script string) (string, error)
}

type cli struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer

	stdinIsTerminal  bool
	stderrIsTerminal bool

	newConverter func() (converter, error)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c := cli{
		stdin:            os.Stdin,
		stdout:           os.Stdout,
		stderr:           os.Stderr,
		stdinIsTerminal:  term.IsTerminal(int(os.Stdin.Fd())),
		stderrIsTerminal: term.IsTerminal(int(os.Stderr.Fd())),
		newConverter: func() (converter, error) {
			cfg, err := client.LoadConfig("")
			if err != nil {
				return nil, err
			}
			return client.New(cfg)
		},
	}
	os.Exit(c.run(ctx, os.Args[1:]))
}

func (c cli) run(ctx context.Context, args []string) int {
	if len(args) > 0 {
		switch args[0] {
		case "-h", "--help", "help":
			fmt.Fprint(c.stderr, helpText)
			return 0
		}
	}

	var inputFile, outputFile string
	switch len(args) {
	case 0:
		if c.stdinIsTerminal {
			fmt.Fprint(c.stderr, helpText)
			return 1
		}
	case 1:
		inputFile = args[0]
	case 2:
		inputFile, outputFile = args[0], args[1]
	default:
		fmt.Fprint(c.stderr, usageText)
		return 1
	}

	script, err := c.readInput(inputFile)
	if err != nil {
		fmt.Fprintf(c.stderr, "Error: %v\n", err)
		return 1
	}
	if strings.TrimSpace(script) == "" {
		fmt.Fprint(c.stderr, helpText)
		return 1
	}

	conv, err := c.newConverter()
	if err != nil {
		fmt.Fprintf(c.stderr, "Configuration error: %v\n", err)
		return 1
	}

	stopSpinner := func() {}
	if c.stderrIsTerminal {
		stopSpinner = startSpinner(c.stderr, "Sending to AI for conversion")
	}
	out, err := conv.Convert(ctx, script)
	stopSpinner()
	if err != nil {
		fmt.Fprintf(c.stderr, "Conversion error: %v\n", err)
		return 1
	}

	if outputFile != "" {
		if err := os.WriteFile(outputFile, []byte(out), 0o644); err != nil {
			fmt.Fprintf(c.stderr, "Error writing output: %v\n", err)
			return 1
		}
		fmt.Fprintf(c.stderr, "Run.ai configuration written to: %s\n", outputFile)
		return 0
	}
	fmt.Fprintln(c.stdout, out)
	return 0
}

func (c cli) readInput(path string) (string, error) {
	if path == "" {
		b, err := io.ReadAll(c.stdin)
		if err != nil {
			return "", fmt.Errorf("reading input: %w", err)
		}
		return string(b), nil
	}
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("file not found: %s", path)
	}
	if err != nil {
		return "", fmt.Errorf("reading input: %w", err)
	}
	return string(b), nil
}

// startSpinner anima uma linha em w até a função devolvida ser chamada.
func startSpinner(w io.Writer, msg string) func() {
	frames := []rune("⠋⠙⠹⠸⠼⠴⠦⠧⠇⠏")
	done := make(chan struct{})
	finished := make(chan struct{})

	go func() {
		defer close(finished)
		t := time.NewTicker(100 * time.Millisecond)
		defer t.Stop()
		for i := 0; ; i++ {
			fmt.Fprintf(w, "\r%c %s...", frames[i%len(frames)], msg)
			select {
			case <-done:
				fmt.Fprintf(w, "\r%s\r", strings.Repeat(" ", len(msg)+10))
				return
			case <-t.C:
			}
		}
	}()

	return func() {
		close(done)
		<-finished
	}
}
