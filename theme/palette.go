package theme

import (
	"bufio"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fmsg"
	"github.com/Southclaws/fault/ftag"
)

type RGB [3]uint8

// Palette is an ordered gradient; roles pick positions along it.
type Palette struct {
	Name   string
	Colors []RGB
}

// LoadGPL reads a GIMP palette file.
func LoadGPL(path string) (*Palette, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fault.Wrap(err, fmsg.With("open palette"))
	}
	defer f.Close()

	p, err := ParseGPL(f)
	if err != nil {
		return nil, fault.Wrap(err, fmsg.With(path))
	}
	return p, nil
}

// ParseGPL decodes GIMP palette text. Lines that are not "R G B [label]"
// with channels in 0..255 are skipped.
func ParseGPL(r io.Reader) (*Palette, error) {
	sc := bufio.NewScanner(r)
	if !sc.Scan() || strings.TrimSpace(sc.Text()) != "GIMP Palette" {
		if err := sc.Err(); err != nil {
			return nil, fault.Wrap(err, fmsg.With("read palette"))
		}
		return nil, fault.Wrap(fault.New("missing GIMP Palette header"), ftag.With(ftag.InvalidArgument))
	}

	p := &Palette{}
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if name, ok := strings.CutPrefix(line, "Name:"); ok {
			p.Name = strings.TrimSpace(name)
			continue
		}
		if c, ok := parseColor(line); ok {
			p.Colors = append(p.Colors, c)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fault.Wrap(err, fmsg.With("read palette"))
	}
	if len(p.Colors) == 0 {
		return nil, fault.Wrap(fault.New("no colors in palette"), ftag.With(ftag.InvalidArgument))
	}
	return p, nil
}

func parseColor(line string) (RGB, bool) {
	var c RGB
	fields := strings.Fields(line)
	if len(fields) < 3 {
		return c, false
	}
	for i := range c {
		v, err := strconv.ParseUint(fields[i], 10, 8)
		if err != nil {
			return c, false
		}
		c[i] = uint8(v)
	}
	return c, true
}

// Default is the built-in gradient used when no palette file is given.
func Default() *Palette {
	return &Palette{
		Name: "dusk",
		Colors: []RGB{
			{0x1b, 0x10, 0x2e},
			{0x3a, 0x1f, 0x5c},
			{0x6b, 0x2d, 0x8a},
			{0xa8, 0x3f, 0x9e},
			{0xd9, 0x5a, 0x8c},
			{0xf0, 0x7e, 0x62},
			{0xf7, 0xb2, 0x4a},
			{0xf9, 0xe8, 0x6a},
		},
	}
}

// Lookup blends the two colors around norm (0-1).
func (p *Palette) Lookup(norm float64) RGB {
	last := len(p.Colors) - 1
	pos := min(max(norm, 0), 1) * float64(last)
	i := min(int(pos), last)
	if i == last {
		return p.Colors[last]
	}
	t := pos - float64(i)
	var c RGB
	for k := range c {
		a, b := float64(p.Colors[i][k]), float64(p.Colors[i+1][k])
		c[k] = uint8(a + (b-a)*t)
	}
	return c
}
