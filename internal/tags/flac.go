package tags

import (
	"strings"

	"github.com/go-flac/flacvorbis/v2"
	"github.com/go-flac/go-flac/v2"
)

// writeFLAC stores ReplayGain values in the FLAC Vorbis comment block,
// creating the block when the file has none. Only metadata blocks are
// rewritten; the audio frames stay untouched.
func writeFLAC(path string, gt GainTags) error {
	file, err := flac.ParseFile(path)
	if err != nil {
		return err
	}

	var comments *flacvorbis.MetaDataBlockVorbisComment
	blockIndex := -1
	for i, block := range file.Meta {
		if block.Type != flac.VorbisComment {
			continue
		}
		comments, err = flacvorbis.ParseFromMetaDataBlock(*block)
		if err != nil {
			return err
		}
		blockIndex = i
		break
	}
	if comments == nil {
		comments = flacvorbis.New()
	}

	filtered := comments.Comments[:0]
	for _, comment := range comments.Comments {
		key, _, ok := strings.Cut(comment, "=")
		if ok && isReplayGainKey(key) {
			continue
		}
		filtered = append(filtered, comment)
	}
	comments.Comments = filtered

	for _, pair := range gt.pairs() {
		if err := comments.Add(pair.key, pair.value); err != nil {
			return err
		}
	}

	block := comments.Marshal()
	if blockIndex >= 0 {
		file.Meta[blockIndex] = &block
	} else {
		file.Meta = append(file.Meta, &block)
	}

	return file.Save(path)
}
