// Package torrent projects a decoded bencoded metainfo buffer into a typed
// Metainfo value and computes its content identifier (info hash), the
// SHA1 digest trackers and peers use to identify the shared content.
package torrent

import (
	"crypto/sha1"
	"fmt"

	"gotorrent/bencoding"
)

// FileEntry describes one file of a multi-file torrent.
type FileEntry struct {
	Length int64
	Path   []string
}

// Info is the typed projection of a metainfo's "info" sub-dictionary.
type Info struct {
	Name        string
	PieceLength int64
	Pieces      [][20]byte

	// Length is set in single-file mode (Files is nil).
	Length int64
	// Files is set in multi-file mode (Length is 0).
	Files []FileEntry
}

// TotalLength is the sum of all file lengths: Length in single-file mode,
// or the sum of every FileEntry.Length in multi-file mode. A previous
// revision of this computation mistakenly returned only Files[0].Length;
// this is the corrected form.
func (i *Info) TotalLength() int64 {
	if len(i.Files) == 0 {
		return i.Length
	}
	var total int64
	for _, f := range i.Files {
		total += f.Length
	}
	return total
}

// PieceLengthAt returns the length of the chunk at index idx: PieceLength
// for every chunk but the last, whose length is TotalLength mod
// PieceLength (or PieceLength itself if that remainder is zero).
func (i *Info) PieceLengthAt(idx int) int64 {
	last := len(i.Pieces) - 1
	if idx != last {
		return i.PieceLength
	}
	begin := int64(last) * i.PieceLength
	return i.TotalLength() - begin
}

// Metainfo is the root of a parsed .torrent file: a tracker list, the
// typed info dictionary, and the content identifier.
type Metainfo struct {
	Announce     string
	AnnounceList [][]string
	Info         Info

	// InfoHash (a.k.a. the content identifier) is the SHA1 digest of the
	// exact bytes the "info" dictionary occupied in the source buffer.
	InfoHash [20]byte
}

// NumPieces is the number of chunk digests in Info.Pieces.
func (m *Metainfo) NumPieces() int { return len(m.Info.Pieces) }

// BytesToDownload is the total content length across all files.
func (m *Metainfo) BytesToDownload() int64 { return m.Info.TotalLength() }

// PieceHash returns the expected digest of chunk idx.
func (m *Metainfo) PieceHash(idx int) [20]byte { return m.Info.Pieces[idx] }

// Trackers flattens announce-list (a list of tiers, each a list of URLs)
// in order; if announce-list is absent it falls back to the singleton
// announce URL; if that too is absent it returns an empty list.
func (m *Metainfo) Trackers() []string {
	if len(m.AnnounceList) > 0 {
		var urls []string
		for _, tier := range m.AnnounceList {
			urls = append(urls, tier...)
		}
		return urls
	}
	if m.Announce != "" {
		return []string{m.Announce}
	}
	return nil
}

// Parse decodes buf as a metainfo file and projects it into a Metainfo,
// computing the content identifier over the exact byte span of the "info"
// sub-dictionary as it appeared in buf.
func Parse(buf []byte) (*Metainfo, error) {
	dec := bencoding.NewDecoder(buf)
	v, err := dec.Decode()
	if err != nil {
		return nil, err
	}

	root, ok := v.(*bencoding.Dictionary)
	if !ok {
		return nil, fmt.Errorf("%w: metainfo root is not a dictionary, got %v", ErrBadShape, v.Type())
	}

	m := &Metainfo{}

	if a, ok := root.Dict["announce"]; ok {
		bs, ok := a.(*bencoding.ByteString)
		if !ok {
			return nil, fmt.Errorf("%w: announce is not a byte string", ErrBadShape)
		}
		m.Announce = string(*bs)
	}

	if al, ok := root.Dict["announce-list"]; ok {
		tiers, ok := al.(*bencoding.List)
		if !ok {
			return nil, fmt.Errorf("%w: announce-list is not a list", ErrBadShape)
		}
		for _, tv := range *tiers {
			tier, ok := tv.(*bencoding.List)
			if !ok {
				return nil, fmt.Errorf("%w: announce-list tier is not a list", ErrBadShape)
			}
			var urls []string
			for _, uv := range *tier {
				bs, ok := uv.(*bencoding.ByteString)
				if !ok {
					return nil, fmt.Errorf("%w: announce-list url is not a byte string", ErrBadShape)
				}
				urls = append(urls, string(*bs))
			}
			m.AnnounceList = append(m.AnnounceList, urls)
		}
	}

	infoVal, ok := root.Dict["info"]
	if !ok {
		return nil, fmt.Errorf("%w: info", ErrMissingField)
	}
	infoDict, ok := infoVal.(*bencoding.Dictionary)
	if !ok {
		return nil, fmt.Errorf("%w: info is not a dictionary, got %v", ErrBadShape, infoVal.Type())
	}

	info, err := parseInfo(infoDict)
	if err != nil {
		return nil, err
	}
	m.Info = *info

	begin, end := root.Spans["info"][0], root.Spans["info"][1]
	m.InfoHash = sha1.Sum(buf[begin:end])

	return m, nil
}

func parseInfo(d *bencoding.Dictionary) (*Info, error) {
	info := &Info{}

	if n, ok := d.Dict["name"]; ok {
		bs, ok := n.(*bencoding.ByteString)
		if !ok {
			return nil, fmt.Errorf("%w: info.name is not a byte string", ErrBadShape)
		}
		info.Name = string(*bs)
	}

	pl, ok := d.Dict["piece length"]
	if !ok {
		return nil, fmt.Errorf("%w: info.piece length", ErrMissingField)
	}
	plInt, ok := pl.(*bencoding.Integer)
	if !ok {
		return nil, fmt.Errorf("%w: info.piece length is not an integer", ErrBadShape)
	}
	if int64(*plInt) <= 0 {
		return nil, fmt.Errorf("%w: info.piece length must be positive", ErrBadShape)
	}
	info.PieceLength = int64(*plInt)

	pv, ok := d.Dict["pieces"]
	if !ok {
		return nil, fmt.Errorf("%w: info.pieces", ErrMissingField)
	}
	digests, ok := pv.(*bencoding.PieceDigests)
	if !ok {
		return nil, fmt.Errorf("%w: info.pieces is not a byte string", ErrBadShape)
	}
	info.Pieces = [][20]byte(*digests)

	_, hasLength := d.Dict["length"]
	_, hasFiles := d.Dict["files"]
	switch {
	case hasLength && hasFiles:
		return nil, fmt.Errorf("%w: info has both length and files", ErrBadShape)
	case hasLength:
		lv := d.Dict["length"]
		li, ok := lv.(*bencoding.Integer)
		if !ok {
			return nil, fmt.Errorf("%w: info.length is not an integer", ErrBadShape)
		}
		info.Length = int64(*li)
	case hasFiles:
		fl, ok := d.Dict["files"].(*bencoding.List)
		if !ok {
			return nil, fmt.Errorf("%w: info.files is not a list", ErrBadShape)
		}
		for _, fv := range *fl {
			fd, ok := fv.(*bencoding.Dictionary)
			if !ok {
				return nil, fmt.Errorf("%w: info.files entry is not a dictionary", ErrBadShape)
			}
			entry, err := parseFileEntry(fd)
			if err != nil {
				return nil, err
			}
			info.Files = append(info.Files, *entry)
		}
	default:
		return nil, fmt.Errorf("%w: info must have exactly one of length or files", ErrMissingField)
	}

	return info, nil
}

func parseFileEntry(d *bencoding.Dictionary) (*FileEntry, error) {
	lv, ok := d.Dict["length"]
	if !ok {
		return nil, fmt.Errorf("%w: files[].length", ErrMissingField)
	}
	li, ok := lv.(*bencoding.Integer)
	if !ok {
		return nil, fmt.Errorf("%w: files[].length is not an integer", ErrBadShape)
	}

	pv, ok := d.Dict["path"]
	if !ok {
		return nil, fmt.Errorf("%w: files[].path", ErrMissingField)
	}
	pl, ok := pv.(*bencoding.List)
	if !ok {
		return nil, fmt.Errorf("%w: files[].path is not a list", ErrBadShape)
	}

	var path []string
	for _, pv := range *pl {
		bs, ok := pv.(*bencoding.ByteString)
		if !ok {
			return nil, fmt.Errorf("%w: files[].path element is not a byte string", ErrBadShape)
		}
		path = append(path, string(*bs))
	}

	return &FileEntry{Length: int64(*li), Path: path}, nil
}
