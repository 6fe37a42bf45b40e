// Package sessionlog locates and reads the history files Claude keeps for a
// session, including the files of the sub-workers the session launched.
//
// Claude stores a session started in working directory cwd as
//
//	<projects>/<encoded cwd>/<session id>.jsonl
//
// and its sub-workers as
//
//	<projects>/<encoded cwd>/<session id>/subagents/agent-<agent id>.jsonl
//
// where the encoded cwd replaces every "/" and "." with "-".
package sessionlog

import (
	"path/filepath"
	"strings"

	"github.com/gobwas/glob"
)

// SubagentPattern matches sub-worker history file names.
const SubagentPattern = "agent-*.jsonl"

var subagentGlob = glob.MustCompile(SubagentPattern)

// EncodeProjectPath converts a working directory into Claude's project
// directory name.
func EncodeProjectPath(cwd string) string {
	return strings.NewReplacer("/", "-", ".", "-").Replace(cwd)
}

// Locator resolves session file paths for one working directory.
type Locator struct {
	ProjectsDir string
	WorkDir     string
}

// NewLocator creates a Locator. workDir is made absolute when possible.
func NewLocator(projectsDir, workDir string) Locator {
	if abs, err := filepath.Abs(workDir); err == nil {
		workDir = abs
	}
	return Locator{ProjectsDir: projectsDir, WorkDir: workDir}
}

// ProjectDir returns the directory holding the working directory's sessions.
func (l Locator) ProjectDir() string {
	return filepath.Join(l.ProjectsDir, EncodeProjectPath(l.WorkDir))
}

// SessionFile returns the main history file of a session.
func (l Locator) SessionFile(sessionID string) string {
	return filepath.Join(l.ProjectDir(), sessionID+".jsonl")
}

// SubagentDir returns the directory holding a session's sub-worker files.
func (l Locator) SubagentDir(sessionID string) string {
	return filepath.Join(l.ProjectDir(), sessionID, "subagents")
}

// SubagentFile returns the history file of one sub-worker.
func (l Locator) SubagentFile(sessionID, agentID string) string {
	return filepath.Join(l.SubagentDir(sessionID), "agent-"+agentID+".jsonl")
}

// IsSubagentFile reports whether name (a base name) is a sub-worker file.
func IsSubagentFile(name string) bool {
	return subagentGlob.Match(name)
}

// AgentIDFromFile returns the agent id encoded in a sub-worker file name,
// or "" when the name does not match SubagentPattern.
func AgentIDFromFile(name string) string {
	base := filepath.Base(name)
	if !IsSubagentFile(base) {
		return ""
	}
	return strings.TrimSuffix(strings.TrimPrefix(base, "agent-"), ".jsonl")
}
