package processing

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"episodic/internal/logging"
)

// Cover is the artwork embedded by the tag stage.
type Cover struct {
	Path   string
	Width  int
	Height int
}

// Tags are the text frames written to the episode.
type Tags struct {
	Title  string
	Artist string
	// Track is omitted from the output when nil.
	Track *int
}

// ProbeCover reads the pixel size of a cover image.
func (p *Processor) ProbeCover(ctx context.Context, path string) (Cover, error) {
	if strings.TrimSpace(path) == "" {
		return Cover{}, missingInput(StageTag, "Audio tagging cover image file is missing")
	}
	job, err := p.load(ctx, StageTag, path, "cover image")
	if err != nil {
		return Cover{}, err
	}
	asset := job.Asset()
	return Cover{Path: path, Width: asset.Width, Height: asset.Height}, nil
}

// ResizeCover scales cover to the configured square when either side is
// larger, consuming the original. Smaller covers are returned unchanged.
func (p *Processor) ResizeCover(ctx context.Context, cover Cover) (string, error) {
	limit := p.opts.CoverMaxSize
	if cover.Width <= limit && cover.Height <= limit {
		return cover.Path, nil
	}
	job, err := p.load(ctx, StageResizeCover, cover.Path, "audio tagging cover image")
	if err != nil {
		return "", err
	}
	output := DerivePath(cover.Path, "_resized", ".png")
	size := strconv.Itoa(limit)
	job.AddArgument("-vf", "scale="+size+":"+size)
	if _, err := p.execute(ctx, StageResizeCover, job, output,
		fmt.Sprintf("Unable to resize cover image file %s for audio tagging", cover.Path), cover.Path); err != nil {
		return "", err
	}
	p.log(ctx, StageResizeCover).Info("cover resized",
		logging.Int("source_width", cover.Width),
		logging.Int("source_height", cover.Height),
		logging.Int("target_size", limit),
		logging.String("output_path", output),
	)
	return output, nil
}

// TagAudio embeds cover art and ID3v2.3 text frames into an MP3 copy of path
// without re-encoding it.
func (p *Processor) TagAudio(ctx context.Context, path string, cover Cover, tags Tags) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", missingInput(StageTag, "Audio tagging input file is missing")
	}
	if strings.TrimSpace(cover.Path) == "" {
		return "", missingInput(StageTag, "Audio tagging cover image file is missing")
	}
	if cover.Width <= 0 && cover.Height <= 0 {
		return "", missingInput(StageTag, "Audio tagging cover image size is missing")
	}
	job, err := p.load(ctx, StageTag, path, "audio tagging")
	if err != nil {
		return "", err
	}
	coverPath, err := p.ResizeCover(ctx, cover)
	if err != nil {
		return "", err
	}

	title := sanitizeTag(tags.Title)
	if title == "" {
		title = DefaultTitle(path)
	}
	artist := sanitizeTag(tags.Artist)
	if artist == "" {
		artist = sanitizeTag(p.opts.Artist)
	}
	job.AddArgument("-i", coverPath).
		AddArgument("-map", "0:0").
		AddArgument("-map", "1:0").
		AddArgument("-codec", "copy").
		AddArgument("-id3v2_version", "3").
		AddArgument("-metadata:s:v", "title=Album cover").
		AddArgument("-metadata:s:v", "comment=Cover (front)").
		AddArgument("-metadata", "title="+title)
	if tags.Track != nil {
		job.AddArgument("-metadata", "track="+strconv.Itoa(*tags.Track))
	}
	job.AddArgument("-metadata", "artist="+artist).
		AddArgument("-metadata", "album="+title).
		AddArgument("-metadata", "year="+strconv.Itoa(p.opts.Now().Year())).
		AddArgument("-metadata", "genre="+sanitizeTag(p.opts.Genre))

	output := DerivePath(path, "_tagging", ".mp3")
	if _, err := p.execute(ctx, StageTag, job, output,
		fmt.Sprintf("Unable to tag cover to audio file %s", output), path); err != nil {
		return "", err
	}
	p.log(ctx, StageTag).Info("audio tagged",
		logging.String("title", title),
		logging.String("artist", artist),
		logging.String("cover_path", coverPath),
		logging.String("output_path", output),
	)
	return output, nil
}

func sanitizeTag(value string) string {
	value = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ").Replace(value)
	return strings.TrimSpace(value)
}

// DefaultTitle derives a display title from a file name, e.g.
// "/in/my_first-episode.wav" becomes "My First Episode".
func DefaultTitle(path string) string {
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	base = strings.NewReplacer("_", " ", "-", " ", ".", " ").Replace(base)
	return cases.Title(language.English).String(strings.Join(strings.Fields(base), " "))
}
