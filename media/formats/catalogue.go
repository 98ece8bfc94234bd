package formats

// Curated priorities for common provider format ids, lower is better. Ids
// not listed here fall back to their codec and container priorities.
var videoCatalogue = map[string]int{
	// muxed mp4
	"22": 2,
	"18": 4,
	// avc1 / mp4
	"299": 1,
	"137": 1,
	"298": 2,
	"136": 2,
	"135": 3,
	"134": 4,
	"133": 5,
	"160": 6,
	// vp9 / webm
	"303": 3,
	"248": 3,
	"302": 4,
	"247": 4,
	"244": 5,
	"243": 6,
	"242": 7,
	"278": 8,
	// hls avc1
	"96": 2,
	"95": 3,
	"94": 4,
	"93": 5,
	"92": 6,
	"91": 7,
}

var audioCatalogue = map[string]int{
	"22":  1,
	"18":  2,
	"141": 1,
	"140": 1,
	"251": 2,
	"250": 3,
	"249": 4,
	"139": 3,
	"599": 5,
	"600": 5,
}
