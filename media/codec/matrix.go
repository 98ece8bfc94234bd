package codec

// Priorities, lower is better. All values are positive.
var (
	videoPriority = map[VideoKind]int{
		H264:   1,
		H265:   2,
		VP9:    3,
		ProRes: 4,
	}
	audioPriority = map[AudioKind]int{
		AACOrALAC: 1,
		Opus:      2,
		MP3:       3,
		FLAC:      4,
		PCM:       5,
	}
	containerPriority = map[ContainerKind]int{
		MP4: 1,
		MOV: 2,
		MKV: 3,
		TS:  4,
	}
)

// Priority returns the fixed priority of the video codec family.
func (v Video) Priority() int { return videoPriority[v.Kind] }

// Priority returns the fixed priority of the audio codec family.
func (a Audio) Priority() int { return audioPriority[a.Kind] }

// Priority returns the fixed priority of the container.
func (c Container) Priority() int { return containerPriority[c.Kind] }

// Which codecs each container can carry without re-encoding.
var (
	videoInContainer = map[ContainerKind]map[VideoKind]bool{
		MP4: {H264: true, H265: true, VP9: true},
		MOV: {H264: true, H265: true, ProRes: true},
		MKV: {H264: true, H265: true, VP9: true, ProRes: true},
		TS:  {H264: true, H265: true},
	}
	audioInContainer = map[ContainerKind]map[AudioKind]bool{
		MP4: {AACOrALAC: true, FLAC: true, Opus: true, MP3: true},
		MOV: {AACOrALAC: true, MP3: true, PCM: true},
		MKV: {AACOrALAC: true, FLAC: true, Opus: true, MP3: true, PCM: true},
		TS:  {AACOrALAC: true, Opus: true, MP3: true},
	}
)

// containerOrder is the order DeriveContainer tries containers in.
var containerOrder = []ContainerKind{MP4, MKV, MOV, TS}

// VideoSupports reports whether the container can carry the video codec.
func VideoSupports(v Video, c Container) bool {
	return videoInContainer[c.Kind][v.Kind]
}

// AudioSupports reports whether the container can carry the audio codec.
func AudioSupports(a Audio, c Container) bool {
	return audioInContainer[c.Kind][a.Kind]
}

// Compatible reports whether audio and video can be muxed together into c.
func Compatible(a Audio, v Video, c Container) bool {
	return AudioSupports(a, c) && VideoSupports(v, c)
}

// DeriveContainer returns the first container, in MP4, MKV, MOV, TS order,
// that can carry both codecs.
func DeriveContainer(a Audio, v Video) (Container, bool) {
	for _, k := range containerOrder {
		c := NewContainer(k)
		if Compatible(a, v, c) {
			return c, true
		}
	}
	return Container{}, false
}
