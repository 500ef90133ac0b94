// Package mmc provides gdrom.Transport implementations: a Linux SG_IO
// device and a drive simulated from a YAML script.
package mmc

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/hansbonini/gdtools/pkg/common"
	"github.com/hansbonini/gdtools/pkg/gdrom"
	"gopkg.in/yaml.v3"
)

// Script describes a simulated drive. Rules are matched in order against
// the start of each command; the inquiry and toc sections answer INQUIRY
// and READ TOC when no rule does.
type Script struct {
	Inquiry      *ScriptInquiry   `yaml:"inquiry,omitempty"`
	TOC          []ScriptTOCEntry `yaml:"toc,omitempty"`
	Rules        []ScriptRule     `yaml:"rules,omitempty"`
	MediaChanges []bool           `yaml:"media_changes,omitempty"`
}

// ScriptInquiry is the identification returned for INQUIRY
type ScriptInquiry struct {
	Vendor   string `yaml:"vendor"`
	Product  string `yaml:"product"`
	Revision string `yaml:"revision"`
}

// ScriptTOCEntry is one descriptor of a format 2 TOC reply. MSF is given
// in decimal "MM:SS:FF" and sent as BCD.
type ScriptTOCEntry struct {
	Session int    `yaml:"session"`
	ADR     int    `yaml:"adr,omitempty"`
	Control int    `yaml:"control"`
	Point   int    `yaml:"point"`
	MSF     string `yaml:"msf"`
}

// ScriptRule answers every command starting with Command (hex bytes). A
// non-zero Sense fails the command; otherwise Response is returned, or
// Length bytes of Fill when Response is empty.
type ScriptRule struct {
	Command  string `yaml:"command"`
	Response string `yaml:"response,omitempty"`
	Fill     int    `yaml:"fill,omitempty"`
	Length   int    `yaml:"length,omitempty"`
	Sense    uint16 `yaml:"sense,omitempty"`
}

type compiledRule struct {
	prefix   []byte
	response []byte
	sense    gdrom.Error
}

// ScriptTransport is a gdrom.Transport that plays back a Script
type ScriptTransport struct {
	rules        []compiledRule
	inquiry      []byte
	toc          []byte
	mediaChanges []bool
	history      []gdrom.Packet
}

// LoadScript reads a YAML drive script from filename
func LoadScript(filename string) (*ScriptTransport, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, common.FormatError(common.ErrFailedToLoadScript, err)
	}
	return ParseScript(data)
}

// ParseScript decodes a YAML drive script
func ParseScript(data []byte) (*ScriptTransport, error) {
	var script Script
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&script); err != nil {
		return nil, common.FormatError(common.ErrFailedToLoadScript, err)
	}
	return NewScriptTransport(script)
}

// NewScriptTransport compiles script into a transport
func NewScriptTransport(script Script) (*ScriptTransport, error) {
	t := &ScriptTransport{
		mediaChanges: append([]bool(nil), script.MediaChanges...),
	}

	for i, rule := range script.Rules {
		compiled, err := compileRule(rule)
		if err != nil {
			return nil, common.FormatError(common.ErrFailedToLoadScript, fmt.Errorf("rule %d: %w", i+1, err))
		}
		t.rules = append(t.rules, compiled)
	}

	if script.Inquiry != nil {
		t.inquiry = buildInquiry(*script.Inquiry)
	}
	if len(script.TOC) > 0 {
		toc, err := buildTOC(script.TOC)
		if err != nil {
			return nil, common.FormatError(common.ErrFailedToLoadScript, err)
		}
		t.toc = toc
	}
	return t, nil
}

func compileRule(rule ScriptRule) (compiledRule, error) {
	prefix, err := parseHex(rule.Command)
	if err != nil {
		return compiledRule{}, fmt.Errorf("command: %w", err)
	}
	if len(prefix) == 0 || len(prefix) > gdrom.PacketSize {
		return compiledRule{}, fmt.Errorf("command must be 1 to %d bytes", gdrom.PacketSize)
	}

	compiled := compiledRule{prefix: prefix, sense: gdrom.Error(rule.Sense)}
	switch {
	case rule.Response != "":
		compiled.response, err = parseHex(rule.Response)
		if err != nil {
			return compiledRule{}, fmt.Errorf("response: %w", err)
		}
	case rule.Length > 0:
		compiled.response = bytes.Repeat([]byte{byte(rule.Fill)}, rule.Length)
	}
	return compiled, nil
}

// parseHex decodes hex bytes, ignoring whitespace
func parseHex(s string) ([]byte, error) {
	return hex.DecodeString(strings.Join(strings.Fields(s), ""))
}

func buildInquiry(inq ScriptInquiry) []byte {
	buf := make([]byte, 36)
	buf[0] = 0x05 // CD/DVD device
	buf[4] = byte(len(buf) - 5)
	copy(buf[8:16], fmt.Sprintf("%-8.8s", inq.Vendor))
	copy(buf[16:32], fmt.Sprintf("%-16.16s", inq.Product))
	copy(buf[32:36], fmt.Sprintf("%-4.4s", inq.Revision))
	return buf
}

func buildTOC(entries []ScriptTOCEntry) ([]byte, error) {
	buf := make([]byte, 4, 4+len(entries)*11)
	firstSession, lastSession := 0xFF, 0
	for i, e := range entries {
		m, s, f, err := parseMSF(e.MSF)
		if err != nil {
			return nil, fmt.Errorf("toc entry %d: %w", i+1, err)
		}
		adr := e.ADR
		if adr == 0 {
			adr = 1
		}

		entry := make([]byte, 11)
		entry[0] = byte(e.Session)
		entry[1] = byte(adr)<<4 | byte(e.Control&0x0F)
		entry[3] = byte(e.Point)
		entry[8] = common.BinaryToBCD(m)
		entry[9] = common.BinaryToBCD(s)
		entry[10] = common.BinaryToBCD(f)
		buf = append(buf, entry...)

		firstSession = min(firstSession, e.Session)
		lastSession = max(lastSession, e.Session)
	}

	length := len(buf) - 2
	buf[0] = byte(length >> 8)
	buf[1] = byte(length)
	buf[2] = byte(firstSession)
	buf[3] = byte(lastSession)
	return buf, nil
}

func parseMSF(s string) (m, sec, f uint8, err error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return 0, 0, 0, fmt.Errorf("msf %q is not MM:SS:FF", s)
	}
	var values [3]uint8
	for i, part := range parts {
		v, err := strconv.ParseUint(part, 10, 8)
		if err != nil || v > 99 {
			return 0, 0, 0, fmt.Errorf("msf %q: bad field %q", s, part)
		}
		values[i] = uint8(v)
	}
	return values[0], values[1], values[2], nil
}

func (t *ScriptTransport) lookup(cmd gdrom.Packet) ([]byte, error) {
	t.history = append(t.history, cmd)

	for _, rule := range t.rules {
		if !bytes.HasPrefix(cmd[:], rule.prefix) {
			continue
		}
		if rule.sense != gdrom.ErrOK {
			return nil, rule.sense
		}
		return rule.response, nil
	}

	switch {
	case cmd[0] == gdrom.MMCInquiry && t.inquiry != nil:
		return t.inquiry, nil
	case cmd[0] == gdrom.MMCReadTOC && t.toc != nil:
		return t.toc, nil
	}
	return nil, gdrom.ErrBadCmd
}

// PacketRead returns the scripted reply, truncated to buf
func (t *ScriptTransport) PacketRead(cmd gdrom.Packet, buf []byte) (int, error) {
	response, err := t.lookup(cmd)
	if err != nil {
		return 0, err
	}
	return copy(buf, response), nil
}

// PacketCmd runs a command that returns no data
func (t *ScriptTransport) PacketCmd(cmd gdrom.Packet) error {
	_, err := t.lookup(cmd)
	return err
}

// MediaChanged returns the next scripted media change, false once the
// sequence runs out.
func (t *ScriptTransport) MediaChanged() bool {
	if len(t.mediaChanges) == 0 {
		return false
	}
	changed := t.mediaChanges[0]
	t.mediaChanges = t.mediaChanges[1:]
	return changed
}

// History returns every command issued so far
func (t *ScriptTransport) History() []gdrom.Packet {
	return append([]gdrom.Packet(nil), t.history...)
}
