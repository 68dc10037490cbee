package processing

import (
	"context"
	"fmt"
	"strings"

	"episodic/internal/logging"
)

const mp3Codec = "mp3"

// SetMP3Codec re-encodes path to MP3 at the configured bitrate. Inputs that
// already carry MP3 audio are returned unchanged unless force is set.
func (p *Processor) SetMP3Codec(ctx context.Context, path string, force bool) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", missingInput(StageCodec, "Set mp3 codec input file is missing")
	}
	job, err := p.load(ctx, StageCodec, path, "set audio mp3 codec")
	if err != nil {
		return "", err
	}
	if !force && job.Asset().Codec == mp3Codec {
		p.log(ctx, StageCodec).Debug("codec already mp3",
			logging.Args(logging.DecisionAttrs("codec_normalize", "skip", "input already mp3")...)...)
		return path, nil
	}
	output := DerivePath(path, "_mp3codec", ".mp3")
	job.SetAudioCodec(mp3Codec).SetAudioBitRate(p.opts.BitrateKbps).
		AddArgument("-q:a", p.quality())
	if _, err := p.execute(ctx, StageCodec, job, output,
		fmt.Sprintf("Setting MP3 Codec failed for file %s", output), path); err != nil {
		return "", err
	}
	p.log(ctx, StageCodec).Info("codec normalized",
		logging.String("source_codec", job.Asset().Codec),
		logging.Bool("forced", force),
		logging.String("output_path", output),
	)
	return output, nil
}
