package torrent_test

import (
	"crypto/sha1"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gotorrent/bencoding"
	"gotorrent/torrent"
)

func buildMetainfo(infoDict string, extra string) []byte {
	return []byte("d" + extra + "4:info" + infoDict + "e")
}

func TestParseSingleFileRoundTrip(t *testing.T) {
	pieces := strings.Repeat("a", 20) + strings.Repeat("b", 20)
	infoDict := "d6:lengthi30000e4:name5:hello12:piece lengthi16384e6:pieces40:" + pieces + "e"
	src := buildMetainfo(infoDict, "8:announce20:http://tracker.test/")

	m, err := torrent.Parse(src)
	require.NoError(t, err)

	assert.Equal(t, "hello", m.Info.Name)
	assert.Equal(t, 2, m.NumPieces())
	assert.EqualValues(t, 30000, m.BytesToDownload())
	assert.EqualValues(t, 16384, m.Info.PieceLengthAt(0))
	assert.EqualValues(t, 30000-16384, m.Info.PieceLengthAt(1))

	want := sha1.Sum([]byte(infoDict))
	assert.Equal(t, want, m.InfoHash)
	assert.Equal(t, []string{"http://tracker.test/"}, m.Trackers())
}

func TestParseMultiFileSumsAllLengths(t *testing.T) {
	pieces := strings.Repeat("c", 20)
	files := "l" +
		"d6:lengthi100e4:pathl5:part1ee" +
		"d6:lengthi250e4:pathl5:part2ee" +
		"e"
	infoDict := "d5:files" + files + "4:name3:dir12:piece lengthi16384e6:pieces20:" + pieces + "e"
	src := buildMetainfo(infoDict, "")

	m, err := torrent.Parse(src)
	require.NoError(t, err)
	assert.EqualValues(t, 350, m.BytesToDownload())
	require.Len(t, m.Info.Files, 2)
	assert.Equal(t, []string{"part1"}, m.Info.Files[0].Path)
}

func TestParseAnnounceListPreferredOverAnnounce(t *testing.T) {
	pieces := strings.Repeat("d", 20)
	infoDict := "d6:lengthi1e4:name1:x12:piece lengthi1e6:pieces20:" + pieces + "e"
	extra := "8:announce8:fallback" +
		"13:announce-list" + "l" + "l7:tier1-a7:tier1-be" + "l7:tier2-ae" + "e"
	src := buildMetainfo(infoDict, extra)

	m, err := torrent.Parse(src)
	require.NoError(t, err)
	assert.Equal(t, []string{"tier1-a", "tier1-b", "tier2-a"}, m.Trackers())
}

func TestParseMissingInfoField(t *testing.T) {
	infoDict := "d4:name1:xe" // missing piece length and pieces
	src := buildMetainfo(infoDict, "")
	_, err := torrent.Parse(src)
	require.ErrorIs(t, err, torrent.ErrMissingField)
}

func TestParsePiecesNotMultipleOf20IsMalformed(t *testing.T) {
	infoDict := "d6:lengthi1e4:name1:x12:piece lengthi1e6:pieces5:abcdee"
	src := buildMetainfo(infoDict, "")
	_, err := torrent.Parse(src)
	require.ErrorIs(t, err, bencoding.ErrMalformed)
}
