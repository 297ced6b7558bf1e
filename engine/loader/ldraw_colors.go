package loader

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/Carmen-Shannon/oxy-ldr/common"
	"github.com/Carmen-Shannon/oxy-ldr/engine/model"
	"github.com/lucasb-eyer/go-colorful"
)

// LDConfigFile is the name of the color table file at the root of an LDraw library.
const LDConfigFile = "LDConfig.ldr"

// LoadColorTable reads the LDConfig color table of an LDraw library.
//
// Parameters:
//   - library: the LDraw library directory
//
// Returns:
//   - model.ColorTable: the parsed colors
//   - error: an error if the file cannot be opened or read
func LoadColorTable(library string) (model.ColorTable, error) {
	f, err := os.Open(filepath.Join(library, LDConfigFile))
	if err != nil {
		return nil, fmt.Errorf("loader: failed to open color table: %w", err)
	}
	defer f.Close()
	return ParseColorTable(f)
}

// ParseColorTable reads `0 !COLOUR` lines. VALUE and EDGE are sRGB hex colors and are stored
// linear; an ALPHA below 255 makes the color transparent. Other lines are ignored, as are
// color lines missing a code or a value.
//
// Parameters:
//   - r: the LDConfig contents
//
// Returns:
//   - model.ColorTable: the parsed colors
//   - error: an error if the reader fails
func ParseColorTable(r io.Reader) (model.ColorTable, error) {
	table := make(model.ColorTable)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 3 || fields[0] != "0" || !strings.EqualFold(fields[1], "!COLOUR") {
			continue
		}
		if c, ok := parseColour(fields[2:]); ok {
			table[c.Code] = c
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("loader: failed to read color table: %w", err)
	}
	return table, nil
}

func parseColour(fields []string) (model.Color, bool) {
	c := model.Color{Name: fields[0]}
	alpha := 255
	var hasCode, hasValue bool
	edge := [4]float32{0, 0, 0, 1}

scan:
	for i := 1; i < len(fields); i++ {
		key := strings.ToUpper(fields[i])
		if i+1 >= len(fields) {
			break
		}
		value := fields[i+1]
		switch key {
		case "CODE":
			code, err := strconv.ParseUint(value, 10, 32)
			if err != nil {
				return model.Color{}, false
			}
			c.Code, hasCode = uint32(code), true
		case "VALUE":
			rgb, ok := linearFromHex(value)
			if !ok {
				return model.Color{}, false
			}
			c.RGBALinear, hasValue = rgb, true
		case "EDGE":
			if rgb, ok := linearFromHex(value); ok {
				edge = rgb
			}
		case "MATERIAL":
			// Material parameters reuse VALUE for their own colors.
			break scan
		case "ALPHA":
			if a, err := strconv.Atoi(value); err == nil {
				alpha = common.Clamp(a, 0, 255)
			}
		default:
			continue
		}
		i++
	}
	if !hasCode || !hasValue {
		return model.Color{}, false
	}
	c.RGBALinear[3] = float32(alpha) / 255
	c.EdgeLinear = edge
	return c, true
}

// linearFromHex converts an sRGB "#RRGGBB" color to opaque linear RGBA.
func linearFromHex(s string) ([4]float32, bool) {
	if !strings.HasPrefix(s, "#") {
		s = "#" + s
	}
	srgb, err := colorful.Hex(s)
	if err != nil {
		return [4]float32{}, false
	}
	r, g, b := srgb.LinearRgb()
	return [4]float32{float32(r), float32(g), float32(b), 1}, true
}
