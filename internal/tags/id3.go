package tags

import (
	"github.com/bogem/id3v2"
)

// writeID3 stores ReplayGain values as TXXX frames. Existing ReplayGain
// frames are replaced; unrelated TXXX frames are preserved.
func writeID3(path string, gt GainTags) error {
	tag, err := id3v2.Open(path, id3v2.Options{Parse: true})
	if err != nil {
		return err
	}
	defer tag.Close()

	txxxID := tag.CommonID("User defined text information frame")

	var kept []id3v2.UserDefinedTextFrame
	for _, framer := range tag.GetFrames(txxxID) {
		frame, ok := framer.(id3v2.UserDefinedTextFrame)
		if !ok || isReplayGainKey(frame.Description) {
			continue
		}
		kept = append(kept, frame)
	}

	tag.DeleteFrames(txxxID)
	for _, frame := range kept {
		tag.AddUserDefinedTextFrame(frame)
	}
	for _, pair := range gt.pairs() {
		tag.AddUserDefinedTextFrame(id3v2.UserDefinedTextFrame{
			Encoding:    id3v2.EncodingUTF8,
			Description: pair.key,
			Value:       pair.value,
		})
	}

	return tag.Save()
}

// readID3 returns the ReplayGain TXXX frames currently stored in the file.
func readID3(path string) (map[string]string, error) {
	tag, err := id3v2.Open(path, id3v2.Options{Parse: true})
	if err != nil {
		return nil, err
	}
	defer tag.Close()

	values := make(map[string]string)
	for _, framer := range tag.GetFrames(tag.CommonID("User defined text information frame")) {
		frame, ok := framer.(id3v2.UserDefinedTextFrame)
		if !ok || !isReplayGainKey(frame.Description) {
			continue
		}
		values[frame.Description] = frame.Value
	}
	return values, nil
}
