package types

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Bridge commands understood by the host.
const (
	CommandExec            = "exec"
	CommandGetRowsModified = "getRowsModified"
	CommandPrepare         = "prepare"
	CommandExecPrepared    = "execPrepared"
	CommandFree            = "free"
	CommandClose           = "close"
)

// Response discriminants.
const (
	TypeResult    = "result"
	TypeException = "exception"
)

// --- JSON structures for host communication ---

// Request defines the structure for requests sent to the host.
type Request struct {
	Command string         `json:"command"`
	SQL     string         `json:"sql,omitempty"`
	Args    []any          `json:"args,omitempty"`  // Values encoded with EncodeValue
	Named   map[string]any `json:"named,omitempty"` // Named bindings, keys without the sigil
	StmtID  string         `json:"stmt_id,omitempty"`
}

// ResultSet is the output of a single statement: column names plus row
// values as the engine stores them. DeclTypes carries the engine's
// declared type per column, "" for expressions.
type ResultSet struct {
	Columns   []string `json:"columns"`
	Values    [][]any  `json:"values"`
	DeclTypes []string `json:"decltypes,omitempty"`
}

// Response is returned for every command. Type is either "result" or
// "exception"; on exception only Message and Stack are meaningful.
type Response struct {
	Type         string      `json:"type"`
	Message      string      `json:"message,omitempty"`
	Stack        string      `json:"stack,omitempty"`
	Results      []ResultSet `json:"results,omitempty"`
	RowsModified int64       `json:"rows_modified,omitempty"`
	StmtID       string      `json:"stmt_id,omitempty"` // For 'prepare', the host statement ID
}

// Failed reports whether the response carries an engine exception.
func (r *Response) Failed() bool {
	return r.Type == TypeException
}

// Unmarshal decodes a payload keeping JSON numbers as json.Number so that
// integers survive as int64 after DecodeValue.
func Unmarshal(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	return nil
}
