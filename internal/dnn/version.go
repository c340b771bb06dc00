package dnn

import (
	"fmt"
	"strconv"
	"sync"
)

// Version describes the engine release.
type Version struct {
	Product string
	Major   int
	Minor   int
	Update  int
	Build   string // Build date, YYYYMMDD
}

// GroupedFilterBuildDate is the first build whose grouped convolutions take a
// 5-D filter {KW, KH, IC/G, OC/G, G} instead of a 4-D one.
const GroupedFilterBuildDate = 20160701

var currentVersion = Version{
	Product: "dnnconv direct convolution engine",
	Major:   2017,
	Minor:   0,
	Update:  3,
	Build:   "20170425",
}

var (
	buildDateOnce sync.Once
	buildDate     int
)

// GetVersion returns the engine version.
func GetVersion() Version {
	return currentVersion
}

// BuildDate returns the numeric build date, parsed once.
func BuildDate() int {
	buildDateOnce.Do(func() {
		n, err := strconv.Atoi(currentVersion.Build)
		if err != nil {
			n = 0
		}
		buildDate = n
	})
	return buildDate
}

// String formats the version like "2017.0.3 (build 20170425)".
func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d (build %s)", v.Major, v.Minor, v.Update, v.Build)
}
