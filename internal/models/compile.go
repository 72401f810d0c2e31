package models

import "time"

// CompileRequest is what the compile service receives.
type CompileRequest struct {
	Code     string
	Language Language
	Flags    string
	Stdin    string
}

// CompileResult is the structured outcome of a remote compile + run.
// Empty strings mean the service did not report the field.
type CompileResult struct {
	Status          int    `json:"status"`
	CompilerMessage string `json:"compiler_message,omitempty"`
	ProgramMessage  string `json:"program_message,omitempty"`
	Signal          string `json:"signal,omitempty"`
	URL             string `json:"url,omitempty"`
}

// Succeeded reports a zero exit status.
func (r *CompileResult) Succeeded() bool {
	return r != nil && r.Status == 0
}

// CompilationRecord is one journal entry for a compile submitted from a session.
type CompilationRecord struct {
	ID              int64     `json:"id"`
	SessionID       string    `json:"session_id"`
	OwnerID         string    `json:"owner_id"`
	OwnerTag        string    `json:"owner_tag"`
	ChannelID       string    `json:"channel_id"`
	Language        Language  `json:"language"`
	Challenge       string    `json:"challenge"`
	Succeeded       bool      `json:"succeeded"`
	Status          int       `json:"status"`
	URL             string    `json:"url,omitempty"`
	CompilerMessage string    `json:"compiler_message,omitempty"`
	Code            string    `json:"-"`
	CreatedAt       time.Time `json:"created_at"`
}

// CompilationFilters narrows a journal listing.
type CompilationFilters struct {
	OwnerID  string
	Language Language
	Limit    int
	Offset   int
}

// CompilationStats counts compiles per language.
type CompilationStats struct {
	Language  Language `json:"language"`
	Succeeded int64    `json:"succeeded"`
	Failed    int64    `json:"failed"`
}
