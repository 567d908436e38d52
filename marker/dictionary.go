package marker

import (
	"sort"
	"strings"

	"gocv.io/x/gocv"

	"github.com/viam-modules/aruco-bridge/cverr"
)

// DefaultDictionary is the dictionary of the original ArUco library.
const DefaultDictionary = "original"

var dictionaries = map[string]gocv.ArucoDictionaryCode{
	"4x4_50":   gocv.ArucoDict4x4_50,
	"4x4_100":  gocv.ArucoDict4x4_100,
	"4x4_250":  gocv.ArucoDict4x4_250,
	"4x4_1000": gocv.ArucoDict4x4_1000,
	"5x5_50":   gocv.ArucoDict5x5_50,
	"5x5_100":  gocv.ArucoDict5x5_100,
	"5x5_250":  gocv.ArucoDict5x5_250,
	"5x5_1000": gocv.ArucoDict5x5_1000,
	"6x6_50":   gocv.ArucoDict6x6_50,
	"6x6_100":  gocv.ArucoDict6x6_100,
	"6x6_250":  gocv.ArucoDict6x6_250,
	"6x6_1000": gocv.ArucoDict6x6_1000,
	"7x7_50":   gocv.ArucoDict7x7_50,
	"7x7_100":  gocv.ArucoDict7x7_100,
	"7x7_250":  gocv.ArucoDict7x7_250,
	"7x7_1000": gocv.ArucoDict7x7_1000,
	"original": gocv.ArucoDictArucoOriginal,
}

// ParseDictionary maps a name such as "6x6_250" or "original" to its code.
// The empty string selects DefaultDictionary.
func ParseDictionary(name string) (gocv.ArucoDictionaryCode, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		name = DefaultDictionary
	}
	name = strings.TrimPrefix(name, "dict_")
	code, ok := dictionaries[name]
	if !ok {
		return 0, cverr.New(cverr.InvalidArgument, "marker.ParseDictionary",
			"unknown dictionary %q, expected one of %s", name, strings.Join(DictionaryNames(), ", "))
	}
	return code, nil
}

// DictionaryNames lists the accepted dictionary names.
func DictionaryNames() []string {
	names := make([]string, 0, len(dictionaries))
	for n := range dictionaries {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
