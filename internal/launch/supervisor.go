package launch

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"github.com/soapstonemc/soapstone/internal/platform"
	"github.com/soapstonemc/soapstone/internal/store"
)

// Common errors.
var (
	ErrNotReady       = errors.New("launch: installation is not ready")
	ErrAlreadyRunning = errors.New("launch: installation is already running")
	ErrNoJava         = errors.New("launch: no usable java runtime")
)

// Credentials is the player identity substituted into the argument
// template. The zero value launches an anonymous offline session.
type Credentials struct {
	PlayerName  string
	PlayerUUID  string
	AccessToken string
	UserType    string
	ClientID    string
}

// Supervisor spawns game processes and tracks the active set. One
// Supervisor serves the whole application.
type Supervisor struct {
	// DataDir is the root the stored class-path and asset paths resolve
	// against.
	DataDir string

	// InstancesDir holds the per-installation working directories.
	InstancesDir string

	// JavaPath resolves the java binary for a required major version.
	JavaPath func(major int) (string, error)

	// HeapMin and HeapMax are the baseline memory flags prepended to every
	// launch, e.g. "-Xms512M".
	HeapMin string
	HeapMax string

	LauncherName    string
	LauncherVersion string

	Logger *slog.Logger

	mu     sync.Mutex
	active map[string]*Instance
}

// Instance is one spawned process. Its run state only moves forward.
type Instance struct {
	ID        string
	VersionID string

	mu          sync.Mutex
	state       RunState
	diagnostics []string
	done        chan struct{}
}

// State returns the current inferred run state.
func (in *Instance) State() RunState {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.state
}

// advance moves the state forward to next. A next at or behind the current
// state is ignored; the reported bool is whether a transition happened.
func (in *Instance) advance(next RunState) bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	if next <= in.state {
		return false
	}
	in.state = next
	return true
}

func (in *Instance) addDiagnostic(line string) {
	in.mu.Lock()
	in.diagnostics = append(in.diagnostics, line)
	in.mu.Unlock()
}

// Wait blocks until the process exits and returns the collected diagnostic
// lines. A non-empty result signals abnormal termination even when the
// process exit status was clean.
func (in *Instance) Wait() []string {
	<-in.done
	in.mu.Lock()
	defer in.mu.Unlock()
	return append([]string(nil), in.diagnostics...)
}

// Launch spawns the installed version described by rec. The returned
// Instance is already registered in the active set; a spawn failure does
// not escape as an error but is folded into the instance diagnostics, so
// callers always get a Wait-able result once preconditions pass.
func (s *Supervisor) Launch(ctx context.Context, rec *store.Installation, creds Credentials, onState func(RunState)) (*Instance, error) {
	if rec.State != store.StateReady {
		return nil, fmt.Errorf("%w: %s is %s", ErrNotReady, rec.Name, rec.State)
	}
	if s.JavaPath == nil {
		return nil, ErrNoJava
	}
	javaBin, err := s.JavaPath(rec.JavaMajor)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoJava, err)
	}

	in := &Instance{
		ID:        rec.ID,
		VersionID: rec.VersionID,
		state:     StateLaunching,
		done:      make(chan struct{}),
	}

	s.mu.Lock()
	if s.active == nil {
		s.active = make(map[string]*Instance)
	}
	if _, running := s.active[rec.ID]; running {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrAlreadyRunning, rec.Name)
	}
	s.active[rec.ID] = in
	s.mu.Unlock()

	args := s.buildArgs(rec, creds, platform.Current())

	cmd := exec.CommandContext(ctx, javaBin, args...)
	cmd.Dir = filepath.Join(s.InstancesDir, rec.Folder)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		s.finish(in, fmt.Sprintf("capturing stdout: %v", err))
		return in, nil
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		s.finish(in, fmt.Sprintf("capturing stderr: %v", err))
		return in, nil
	}

	if err := cmd.Start(); err != nil {
		s.finish(in, fmt.Sprintf("starting process: %v", err))
		return in, nil
	}
	s.logger().Info("process started", "id", rec.ID, "version", rec.VersionID, "pid", cmd.Process.Pid)

	var scanners sync.WaitGroup
	scanners.Add(2)
	go func() {
		defer scanners.Done()
		s.scanStdout(in, stdout, onState)
	}()
	go func() {
		defer scanners.Done()
		s.scanStderr(in, stderr)
	}()

	go func() {
		scanners.Wait()
		if err := cmd.Wait(); err != nil {
			in.addDiagnostic(fmt.Sprintf("process exited: %v", err))
		}
		s.finish(in, "")
	}()

	return in, nil
}

// Active returns the ids of currently running instances.
func (s *Supervisor) Active() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.active))
	for id := range s.active {
		out = append(out, id)
	}
	return out
}

// finish records an optional synthetic diagnostic, removes the instance
// from the active set and releases waiters. Safe to call once per instance.
func (s *Supervisor) finish(in *Instance, diagnostic string) {
	if diagnostic != "" {
		in.addDiagnostic(diagnostic)
	}
	s.mu.Lock()
	delete(s.active, in.ID)
	s.mu.Unlock()
	close(in.done)
	s.logger().Info("process finished", "id", in.ID, "state", in.State().String())
}

func (s *Supervisor) scanStdout(in *Instance, r io.Reader, onState func(RunState)) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Text()
		if next, ok := classify(line); ok && in.advance(next) && onState != nil {
			onState(next)
		}
		if strings.Contains(line, internalErrorMarker) {
			in.addDiagnostic(line)
		}
	}
	if err := sc.Err(); err != nil {
		s.logger().Warn("stdout scan ended", "id", in.ID, "error", err)
	}
}

func (s *Supervisor) scanStderr(in *Instance, r io.Reader) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		in.addDiagnostic(sc.Text())
	}
	if err := sc.Err(); err != nil {
		s.logger().Warn("stderr scan ended", "id", in.ID, "error", err)
	}
}

// buildArgs assembles the final argument vector: baseline heap flags, the
// stored jvm arguments with placeholders substituted, the main class, then
// the substituted game arguments.
func (s *Supervisor) buildArgs(rec *store.Installation, creds Credentials, p platform.Platform) []string {
	classPath := make([]string, 0, len(rec.ClassPath))
	for _, entry := range rec.ClassPath {
		classPath = append(classPath, filepath.Join(s.DataDir, filepath.FromSlash(entry)))
	}

	playerName := creds.PlayerName
	if playerName == "" {
		playerName = "Player"
	}
	userType := creds.UserType
	if userType == "" {
		userType = "offline"
	}

	sub := newSubstituter(map[string]string{
		"auth_player_name":  playerName,
		"auth_uuid":         creds.PlayerUUID,
		"auth_access_token": creds.AccessToken,
		"user_type":         userType,
		"clientid":          creds.ClientID,
		"version_name":      rec.VersionID,
		"version_type":      rec.Type,
		"game_directory":    filepath.Join(s.InstancesDir, rec.Folder),
		"assets_root":       filepath.Join(s.DataDir, "assets"),
		"assets_index_name": rec.AssetIndex,
		"natives_directory": filepath.Join(s.DataDir, "versions", rec.VersionID, "natives"),
		"classpath":         strings.Join(classPath, string(filepath.ListSeparator)),
		"launcher_name":     s.launcherName(),
		"launcher_version":  s.launcherVersion(),
	})

	var args []string
	if s.HeapMin != "" {
		args = append(args, s.HeapMin)
	}
	if s.HeapMax != "" {
		args = append(args, s.HeapMax)
	}

	jvm := stripStaleOSPins(rec.JVMArgs, p)
	for _, tok := range jvm {
		args = append(args, sub.apply(tok))
	}
	args = append(args, rec.MainClass)
	for _, tok := range rec.GameArgs {
		args = append(args, sub.apply(tok))
	}
	return args
}

// stripStaleOSPins drops the release-pinned os.name/os.version system
// properties on windows when the pinned version is not the running major
// release. Such flags exist to disambiguate one specific windows build;
// carrying them onto a different build misreports the OS to the process.
func stripStaleOSPins(args []string, p platform.Platform) []string {
	if p.OS != "windows" {
		return args
	}

	pinned := ""
	for _, tok := range args {
		if v, ok := strings.CutPrefix(tok, "-Dos.version="); ok {
			pinned = v
		}
	}
	if pinned == "" || strings.HasPrefix(p.OSVersion, pinned) {
		return args
	}

	out := make([]string, 0, len(args))
	for _, tok := range args {
		if strings.HasPrefix(tok, "-Dos.name=") || strings.HasPrefix(tok, "-Dos.version=") {
			continue
		}
		out = append(out, tok)
	}
	return out
}

// substituter replaces ${name} placeholders in argument tokens. Unknown
// placeholders are left intact so a malformed template stays visible in
// diagnostics instead of vanishing.
type substituter struct {
	replacer *strings.Replacer
}

func newSubstituter(values map[string]string) *substituter {
	pairs := make([]string, 0, len(values)*2)
	for name, value := range values {
		pairs = append(pairs, "${"+name+"}", value)
	}
	return &substituter{replacer: strings.NewReplacer(pairs...)}
}

func (s *substituter) apply(token string) string {
	return s.replacer.Replace(token)
}

func (s *Supervisor) launcherName() string {
	if s.LauncherName != "" {
		return s.LauncherName
	}
	return "soapstone"
}

func (s *Supervisor) launcherVersion() string {
	if s.LauncherVersion != "" {
		return s.LauncherVersion
	}
	return "dev"
}

func (s *Supervisor) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}
