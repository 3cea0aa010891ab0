package advisor

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	initTimeout = 4 * time.Second
	// Extra wall-clock allowance on top of movetime before a search is
	// declared lost.
	defaultGrace = time.Second
)

// UCIAdvisor drives a single engine process over stdin/stdout. Searches are
// serialized with a mutex; the session coordinator already guarantees one
// outstanding request per session, this guard covers requests from different
// sessions sharing the process.
type UCIAdvisor struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout *bufio.Reader

	mu     sync.Mutex
	search sync.Mutex

	grace time.Duration
	log   *zap.Logger
}

// NewUCIAdvisor starts the engine binary and performs the UCI handshake.
func NewUCIAdvisor(binaryPath string, grace time.Duration, logger *zap.Logger) (*UCIAdvisor, error) {
	if strings.TrimSpace(binaryPath) == "" {
		return nil, fmt.Errorf("engine binary path required")
	}
	if grace <= 0 {
		grace = defaultGrace
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	cmd := exec.Command(binaryPath)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("create stdin pipe: %w", err)
	}
	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		stdin.Close()
		return nil, fmt.Errorf("create stdout pipe: %w", err)
	}
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		stdin.Close()
		stdoutPipe.Close()
		return nil, fmt.Errorf("start engine: %w", err)
	}

	a := &UCIAdvisor{
		cmd:    cmd,
		stdin:  stdin,
		stdout: bufio.NewReader(stdoutPipe),
		grace:  grace,
		log:    logger,
	}
	if err := a.initialize(); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

// RequestMove runs one search and returns the engine's best move.
func (a *UCIAdvisor) RequestMove(ctx context.Context, req Request) (Result, error) {
	a.search.Lock()
	defer a.search.Unlock()

	preset := PresetFor(req.Difficulty)

	searchCtx, cancel := context.WithTimeout(ctx, preset.MoveTime+a.grace)
	defer cancel()

	if err := a.send(fmt.Sprintf("setoption name Skill Level value %d\n", preset.SkillLevel)); err != nil {
		return Result{}, fmt.Errorf("set skill level: %w", err)
	}
	if err := a.send(buildPositionCommand(req.FEN, req.MovesUCI)); err != nil {
		return Result{}, fmt.Errorf("send position: %w", err)
	}
	if err := a.send("go movetime " + strconv.FormatInt(preset.MoveTime.Milliseconds(), 10) + "\n"); err != nil {
		return Result{}, fmt.Errorf("send go: %w", err)
	}

	start := time.Now()
	for {
		line, err := a.readLine(searchCtx)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				a.log.Warn("engine search timed out",
					zap.String("fen", req.FEN),
					zap.Duration("movetime", preset.MoveTime),
				)
				return Result{}, ErrTimeout
			}
			return Result{}, fmt.Errorf("read engine output: %w", err)
		}
		if !strings.HasPrefix(line, "bestmove") {
			continue
		}
		parts := strings.Fields(line)
		if len(parts) < 2 || parts[1] == "(none)" {
			return Result{}, fmt.Errorf("engine returned no move")
		}
		return Result{MoveUCI: parts[1], Duration: time.Since(start)}, nil
	}
}

// Close terminates the engine process.
func (a *UCIAdvisor) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stdin != nil {
		_, _ = io.WriteString(a.stdin, "quit\n")
		a.stdin.Close()
	}
	if a.cmd != nil && a.cmd.Process != nil {
		_ = a.cmd.Process.Kill()
	}
	if a.cmd != nil {
		return a.cmd.Wait()
	}
	return nil
}

func (a *UCIAdvisor) initialize() error {
	ctx, cancel := context.WithTimeout(context.Background(), initTimeout)
	defer cancel()

	if err := a.send("uci\n"); err != nil {
		return fmt.Errorf("send uci: %w", err)
	}
	if err := a.awaitToken(ctx, "uciok"); err != nil {
		return fmt.Errorf("wait uciok: %w", err)
	}
	if err := a.send("isready\n"); err != nil {
		return fmt.Errorf("send isready: %w", err)
	}
	if err := a.awaitToken(ctx, "readyok"); err != nil {
		return fmt.Errorf("wait readyok: %w", err)
	}
	return nil
}

func (a *UCIAdvisor) send(msg string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, err := io.WriteString(a.stdin, msg)
	return err
}

func (a *UCIAdvisor) awaitToken(ctx context.Context, token string) error {
	for {
		line, err := a.readLine(ctx)
		if err != nil {
			return err
		}
		if strings.Contains(line, token) {
			return nil
		}
	}
}

func (a *UCIAdvisor) readLine(ctx context.Context) (string, error) {
	type result struct {
		line string
		err  error
	}
	ch := make(chan result, 1)

	go func() {
		line, err := a.stdout.ReadString('\n')
		ch <- result{line: strings.TrimSpace(line), err: err}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		return res.line, res.err
	}
}

func buildPositionCommand(fen string, moves []string) string {
	var sb strings.Builder
	if strings.TrimSpace(fen) == "" || fen == "startpos" {
		sb.WriteString("position startpos")
	} else {
		sb.WriteString("position fen ")
		sb.WriteString(fen)
	}
	if len(moves) > 0 {
		sb.WriteString(" moves ")
		sb.WriteString(strings.Join(moves, " "))
	}
	sb.WriteString("\n")
	return sb.String()
}
