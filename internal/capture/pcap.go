// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package capture

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"os"
	"sync"

	"github.com/gopacket/gopacket"
	"github.com/gopacket/gopacket/layers"
	"github.com/gopacket/gopacket/pcapgo"

	"github.com/tsdasari9/firewall/internal/errors"
)

var pcapngMagic = []byte{0x0a, 0x0d, 0x0d, 0x0a}

type packetReader interface {
	ReadPacketData() ([]byte, gopacket.CaptureInfo, error)
	LinkType() layers.LinkType
}

// PCAPSource replays a pcap or pcapng file.
type PCAPSource struct {
	mu     sync.Mutex
	f      io.Closer
	r      packetReader
	closed bool
}

// OpenPCAP opens a capture file. The format is detected from its header.
func OpenPCAP(path string) (*PCAPSource, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrapf(err, errors.KindNotFound, "capture file %s", path)
		}
		return nil, errors.Wrapf(err, errors.KindUnavailable, "open capture file %s", path)
	}
	src, err := NewPCAPSource(f)
	if err != nil {
		f.Close()
		return nil, errors.Attr(err, "path", path)
	}
	src.f = f
	return src, nil
}

// NewPCAPSource reads a capture from r.
func NewPCAPSource(r io.Reader) (*PCAPSource, error) {
	br := bufio.NewReader(r)
	magic, err := br.Peek(4)
	if err != nil {
		return nil, errors.Wrap(err, errors.KindMalformed, "read capture header")
	}

	var pr packetReader
	if bytes.Equal(magic, pcapngMagic) {
		pr, err = pcapgo.NewNgReader(br, pcapgo.DefaultNgReaderOptions)
	} else {
		pr, err = pcapgo.NewReader(br)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.KindMalformed, "parse capture header")
	}
	return &PCAPSource{r: pr}, nil
}

func (s *PCAPSource) Next(ctx context.Context) (Packet, error) {
	if err := ctx.Err(); err != nil {
		return Packet{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Packet{}, ErrClosed
	}

	data, ci, err := s.r.ReadPacketData()
	if err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return Packet{}, io.EOF
		}
		return Packet{}, errors.Wrap(err, errors.KindMalformed, "read capture record")
	}
	return Packet{Data: data, Timestamp: ci.Timestamp}, nil
}

func (s *PCAPSource) LinkType() layers.LinkType {
	return s.r.LinkType()
}

func (s *PCAPSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.f != nil {
		return s.f.Close()
	}
	return nil
}

// PCAPWriter records frames to a pcap file. It is safe for concurrent use.
type PCAPWriter struct {
	mu      sync.Mutex
	w       *pcapgo.Writer
	c       io.Closer
	snaplen uint32
	written uint64
}

// CreatePCAP creates (or truncates) path and writes a pcap header.
func CreatePCAP(path string, link layers.LinkType, snaplen uint32) (*PCAPWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, errors.Wrapf(err, errors.KindUnavailable, "create capture file %s", path)
	}
	w, err := NewPCAPWriter(f, link, snaplen)
	if err != nil {
		f.Close()
		return nil, err
	}
	w.c = f
	return w, nil
}

// NewPCAPWriter writes a pcap header to w and returns a writer for it.
func NewPCAPWriter(w io.Writer, link layers.LinkType, snaplen uint32) (*PCAPWriter, error) {
	pw := pcapgo.NewWriter(w)
	if err := pw.WriteFileHeader(snaplen, link); err != nil {
		return nil, errors.Wrap(err, errors.KindInternal, "write pcap header")
	}
	return &PCAPWriter{w: pw, snaplen: snaplen}, nil
}

// WritePacket appends p, truncated to the snap length.
func (w *PCAPWriter) WritePacket(p Packet) error {
	data := p.Data
	if w.snaplen > 0 && uint32(len(data)) > w.snaplen {
		data = data[:w.snaplen]
	}
	ci := gopacket.CaptureInfo{
		Timestamp:     p.Timestamp,
		CaptureLength: len(data),
		Length:        len(p.Data),
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.w.WritePacket(ci, data); err != nil {
		return errors.Wrap(err, errors.KindInternal, "write pcap record")
	}
	w.written++
	return nil
}

// Written is the number of records written so far.
func (w *PCAPWriter) Written() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.written
}

func (w *PCAPWriter) Close() error {
	if w.c == nil {
		return nil
	}
	return w.c.Close()
}
