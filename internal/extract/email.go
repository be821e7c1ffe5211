package extract

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
	"golang.org/x/text/encoding/htmlindex"

	perrors "github.com/Aman-CERP/prometheus/internal/errors"
	"github.com/Aman-CERP/prometheus/internal/evidence"
	"github.com/Aman-CERP/prometheus/internal/textenc"
)

// maxMIMEDepth bounds nested multipart recursion.
const maxMIMEDepth = 16

// searchedHeaders are emitted as field units, in this order.
var searchedHeaders = []string{"Subject", "From", "To", "Cc", "Bcc", "Reply-To", "Date"}

var wordDecoder = &mime.WordDecoder{
	CharsetReader: func(charset string, input io.Reader) (io.Reader, error) {
		enc, err := htmlindex.Get(charset)
		if err != nil {
			return nil, err
		}
		return enc.NewDecoder().Reader(input), nil
	},
}

// emailExtractor handles RFC 822 messages: searched headers become field
// units and every textual body part is split into lines.
type emailExtractor struct {
	policy *bluemonday.Policy
}

func newEmailExtractor() *emailExtractor {
	p := bluemonday.StrictPolicy()
	p.AddSpaceWhenStrippingTag(true)
	return &emailExtractor{policy: p}
}

func (e *emailExtractor) Format() evidence.Format { return evidence.FormatEmail }

func (e *emailExtractor) Extract(ctx context.Context, entry evidence.Entry, archivePath string, emit Emit) error {
	data, err := readEntry(entry)
	if err != nil {
		return err
	}
	msg, err := mail.ReadMessage(bytes.NewReader(data))
	if err != nil {
		return perrors.EntryReadError(entry.Path, "malformed message", err)
	}
	u := newUnits(entry, archivePath, evidence.FormatEmail, emit)
	for _, name := range searchedHeaders {
		value := msg.Header.Get(name)
		if value == "" {
			continue
		}
		decoded, derr := wordDecoder.DecodeHeader(value)
		if derr != nil {
			decoded = value
		}
		n := textenc.Normalize([]byte(decoded))
		if err := u.add(evidence.Locator{Field: name}, n.Text, n.Encoding, n.Lossy); err != nil {
			return err
		}
	}

	w := &partWalker{ctx: ctx, units: u, policy: e.policy}
	if err := w.walk(msg.Header, msg.Body, 0); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		var pe *perrors.PrometheusError
		if errors.As(err, &pe) {
			return err
		}
		return perrors.EntryReadError(entry.Path, "malformed message body", err)
	}
	return nil
}

// header is the subset of MIME headers the walker needs.
type header interface {
	Get(key string) string
}

type partWalker struct {
	ctx    context.Context
	units  *units
	policy *bluemonday.Policy
	part   int
}

func (w *partWalker) walk(h header, body io.Reader, depth int) error {
	if depth > maxMIMEDepth {
		return nil
	}

	ctype := h.Get("Content-Type")
	if ctype == "" {
		ctype = "text/plain"
	}
	mediaType, params, err := mime.ParseMediaType(ctype)
	if err != nil {
		// Unparseable content type: treat the body as plain text.
		mediaType, params = "text/plain", nil
	}

	if strings.HasPrefix(mediaType, "multipart/") {
		boundary := params["boundary"]
		if boundary == "" {
			return errors.New("multipart body without boundary")
		}
		mr := multipart.NewReader(body, boundary)
		for {
			p, err := mr.NextRawPart()
			if errors.Is(err, io.EOF) {
				return nil
			}
			if err != nil {
				return err
			}
			err = w.walk(p.Header, p, depth+1)
			_ = p.Close()
			if err != nil {
				return err
			}
		}
	}

	if mediaType == "message/rfc822" {
		inner, err := mail.ReadMessage(body)
		if err != nil {
			return nil
		}
		return w.walk(inner.Header, inner.Body, depth+1)
	}

	if !strings.HasPrefix(mediaType, "text/") || isAttachment(h) {
		return nil
	}

	raw, err := decodeTransfer(h.Get("Content-Transfer-Encoding"), body)
	if err != nil {
		return err
	}
	w.part++

	text := textenc.Decode(raw, params["charset"])
	if mediaType == "text/html" {
		text.Text = html.UnescapeString(w.policy.Sanitize(text.Text))
	}

	part := w.part
	return w.units.lines(w.ctx, text.Text, 1, text, func(line int) evidence.Locator {
		return evidence.Locator{Part: part, Line: line}
	})
}

func isAttachment(h header) bool {
	disp, _, err := mime.ParseMediaType(h.Get("Content-Disposition"))
	return err == nil && disp == "attachment"
}

func decodeTransfer(cte string, body io.Reader) ([]byte, error) {
	switch strings.ToLower(strings.TrimSpace(cte)) {
	case "quoted-printable":
		return io.ReadAll(quotedprintable.NewReader(body))
	case "base64":
		raw, err := io.ReadAll(body)
		if err != nil {
			return nil, err
		}
		clean := strings.Map(func(r rune) rune {
			if r == '\r' || r == '\n' || r == ' ' || r == '\t' {
				return -1
			}
			return r
		}, string(raw))
		out, err := base64.StdEncoding.DecodeString(clean)
		if err != nil {
			return base64.RawStdEncoding.DecodeString(strings.TrimRight(clean, "="))
		}
		return out, nil
	default:
		return io.ReadAll(body)
	}
}
