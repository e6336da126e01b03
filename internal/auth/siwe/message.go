// Package siwe parses and verifies Sign-In with Ethereum (EIP-4361) messages.
package siwe

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

const preambleSuffix = " wants you to sign in with your Ethereum account:"

// Message is a parsed EIP-4361 message.
type Message struct {
	Domain         string
	Address        common.Address
	Statement      string
	URI            string
	Version        string
	ChainID        int64
	Nonce          string
	IssuedAt       time.Time
	ExpirationTime *time.Time
	NotBefore      *time.Time
	RequestID      string
	Resources      []string
}

var ErrMalformed = errors.New("malformed siwe message")

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformed, fmt.Sprintf(format, args...))
}

// fieldOrder is the EIP-4361 field sequence. The first requiredFields must be
// present; Resources may follow the last one.
var fieldOrder = []string{"URI", "Version", "Chain ID", "Nonce", "Issued At", "Expiration Time", "Not Before", "Request ID"}

const requiredFields = 5

// ParseMessage parses the text a wallet signed. Lines must appear in the
// EIP-4361 order: preamble, address, a blank line, an optional one-line
// statement followed by a blank line, then the fields. A field out of order,
// repeated or unknown makes the message malformed.
func ParseMessage(text string) (*Message, error) {
	text = strings.TrimSuffix(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	lines := strings.Split(text, "\n")
	if len(lines) < 4 {
		return nil, malformed("too short")
	}

	domain, ok := strings.CutSuffix(lines[0], preambleSuffix)
	if !ok || domain == "" {
		return nil, malformed("missing preamble")
	}
	if _, rest, found := strings.Cut(domain, "://"); found {
		domain = rest
	}

	addr := lines[1]
	if !common.IsHexAddress(addr) {
		return nil, malformed("invalid address %q", addr)
	}
	msg := &Message{Domain: domain, Address: common.HexToAddress(addr)}

	if lines[2] != "" {
		return nil, malformed("expected blank line after address")
	}
	i := 3
	if lines[i] != "" {
		msg.Statement = lines[i]
		i++
		if i >= len(lines) || lines[i] != "" {
			return nil, malformed("statement must be a single line followed by a blank line")
		}
	}
	i++

	for n, key := range fieldOrder {
		value, found := "", false
		if i < len(lines) {
			value, found = strings.CutPrefix(lines[i], key+": ")
		}
		if !found {
			if n < requiredFields {
				return nil, malformed("expected %s", key)
			}
			continue
		}
		if err := msg.setField(key, value); err != nil {
			return nil, err
		}
		i++
	}

	if i < len(lines) && lines[i] == "Resources:" {
		for i++; i < len(lines); i++ {
			res, ok := strings.CutPrefix(lines[i], "- ")
			if !ok {
				break
			}
			msg.Resources = append(msg.Resources, res)
		}
	}
	if i < len(lines) {
		return nil, malformed("unexpected line %q", lines[i])
	}

	switch {
	case msg.URI == "":
		return nil, malformed("missing URI")
	case msg.Version != "1":
		return nil, malformed("unsupported version %q", msg.Version)
	case len(msg.Nonce) < 8 || !alphanumeric(msg.Nonce):
		return nil, malformed("nonce must be at least 8 alphanumeric characters")
	}
	return msg, nil
}

func alphanumeric(s string) bool {
	for _, r := range s {
		if (r < '0' || r > '9') && (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') {
			return false
		}
	}
	return true
}

func (m *Message) setField(key, value string) error {
	switch key {
	case "URI":
		m.URI = value
	case "Version":
		m.Version = value
	case "Chain ID":
		id, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return malformed("invalid chain id %q", value)
		}
		m.ChainID = id
	case "Nonce":
		m.Nonce = value
	case "Issued At":
		t, err := parseTime(key, value)
		if err != nil {
			return err
		}
		m.IssuedAt = t
	case "Expiration Time":
		t, err := parseTime(key, value)
		if err != nil {
			return err
		}
		m.ExpirationTime = &t
	case "Not Before":
		t, err := parseTime(key, value)
		if err != nil {
			return err
		}
		m.NotBefore = &t
	case "Request ID":
		m.RequestID = value
	}
	return nil
}

func parseTime(key, value string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, malformed("invalid %s %q", key, value)
	}
	return t, nil
}

// String renders the message in EIP-4361 form.
func (m *Message) String() string {
	var b strings.Builder
	b.WriteString(m.Domain + preambleSuffix + "\n")
	b.WriteString(m.Address.Hex() + "\n\n")
	if m.Statement != "" {
		b.WriteString(m.Statement + "\n")
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "URI: %s\n", m.URI)
	fmt.Fprintf(&b, "Version: %s\n", m.Version)
	fmt.Fprintf(&b, "Chain ID: %d\n", m.ChainID)
	fmt.Fprintf(&b, "Nonce: %s\n", m.Nonce)
	fmt.Fprintf(&b, "Issued At: %s", m.IssuedAt.UTC().Format(time.RFC3339Nano))
	if m.ExpirationTime != nil {
		fmt.Fprintf(&b, "\nExpiration Time: %s", m.ExpirationTime.UTC().Format(time.RFC3339Nano))
	}
	if m.NotBefore != nil {
		fmt.Fprintf(&b, "\nNot Before: %s", m.NotBefore.UTC().Format(time.RFC3339Nano))
	}
	if m.RequestID != "" {
		fmt.Fprintf(&b, "\nRequest ID: %s", m.RequestID)
	}
	if len(m.Resources) > 0 {
		b.WriteString("\nResources:")
		for _, r := range m.Resources {
			b.WriteString("\n- " + r)
		}
	}
	return b.String()
}
