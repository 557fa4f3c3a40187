package scraper

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleVTT = `WEBVTT
Kind: captions
Language: en

NOTE generated by yt-dlp

1
00:00:01.000 --> 00:00:03.500 align:start position:0%
hello <c>and</c> welcome

2
00:00:03.500 --> 00:00:05.000
hello and welcome

00:01:02.250 --> 00:01:04.000
<00:01:02.500><c>to the</c> channel

01:00:00.000 --> 01:00:02.000
last line
`

func TestParseVTT(t *testing.T) {
	segments, err := ParseVTT(strings.NewReader(sampleVTT))
	require.NoError(t, err)

	require.Len(t, segments, 3)
	assert.Equal(t, Segment{Timestamp: "0:01", StartMs: 1000, Text: "hello and welcome"}, segments[0])
	assert.Equal(t, "to the channel", segments[1].Text)
	assert.Equal(t, int64(62250), segments[1].StartMs)
	assert.Equal(t, "1:02", segments[1].Timestamp)
	assert.Equal(t, "1:00:00", segments[2].Timestamp)

	assert.Equal(t, "hello and welcome to the channel last line", PlainText(segments))
}

func TestParseVTTEmpty(t *testing.T) {
	segments, err := ParseVTT(strings.NewReader("WEBVTT\n\n"))
	require.NoError(t, err)
	assert.Empty(t, segments)
	assert.Equal(t, "", PlainText(segments))
}

func TestParseVTTTime(t *testing.T) {
	assert.Equal(t, int64(42500), parseVTTTime("00:00:42.500"))
	assert.Equal(t, int64(42500), parseVTTTime("00:42.500"))
	assert.Equal(t, int64(3723000), parseVTTTime("01:02:03.000"))
	assert.Equal(t, int64(0), parseVTTTime("garbage"))
}
