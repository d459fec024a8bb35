// Package registry implements the shared on-disk mapping of peer names to
// launch descriptors: a read/decode/mutate/write-whole-file JSON store
// guarded by an advisory file lock.
package registry

import "encoding/json"

// Mode selects how a peer was started.
type Mode string

// Known launch modes.
const (
	ModeScript Mode = "script"
	ModeBinary Mode = "binary"
)

// Descriptor is the launch descriptor persisted in the registry: how to
// spawn a peer that isn't currently running. Extra preserves any JSON
// fields this implementation doesn't know about so a read-modify-write
// round-trips them unchanged.
type Descriptor struct {
	Mode    Mode
	Command []string
	Cwd     string
	Extra   map[string]json.RawMessage
}

// MarshalJSON renders the descriptor using its fixed wire field names
// (`type`, `cmd`, `cwd`), folding in any preserved unknown fields.
func (d Descriptor) MarshalJSON() ([]byte, error) {
	out := make(map[string]json.RawMessage, len(d.Extra)+3)
	for k, v := range d.Extra {
		out[k] = v
	}
	typeJSON, err := json.Marshal(string(d.Mode))
	if err != nil {
		return nil, err
	}
	out["type"] = typeJSON

	cmd := d.Command
	if cmd == nil {
		cmd = []string{}
	}
	cmdJSON, err := json.Marshal(cmd)
	if err != nil {
		return nil, err
	}
	out["cmd"] = cmdJSON

	cwdJSON, err := json.Marshal(d.Cwd)
	if err != nil {
		return nil, err
	}
	out["cwd"] = cwdJSON

	return json.Marshal(out)
}

// UnmarshalJSON parses a descriptor, preserving any field it does not
// recognize in Extra so a subsequent write does not drop it.
func (d *Descriptor) UnmarshalJSON(b []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	if v, ok := raw["type"]; ok {
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			return err
		}
		d.Mode = Mode(s)
		delete(raw, "type")
	}
	if v, ok := raw["cmd"]; ok {
		if err := json.Unmarshal(v, &d.Command); err != nil {
			return err
		}
		delete(raw, "cmd")
	}
	if v, ok := raw["cwd"]; ok {
		if err := json.Unmarshal(v, &d.Cwd); err != nil {
			return err
		}
		delete(raw, "cwd")
	}
	d.Extra = raw
	return nil
}

// Target returns the filesystem object that must exist at launch time for
// this descriptor to be usable: command[0] for binary mode, command[1]
// for script mode.
func (d Descriptor) Target() (string, bool) {
	switch d.Mode {
	case ModeBinary:
		if len(d.Command) >= 1 {
			return d.Command[0], true
		}
	case ModeScript:
		if len(d.Command) >= 2 {
			return d.Command[1], true
		}
	}
	return "", false
}
