// Command mp4probe prints the tracks and keyframe distribution of media files
// or URLs. Several inputs are probed concurrently.
package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/tetsuo/mediaparse"
	"github.com/tetsuo/mediaparse/media"
	"github.com/tetsuo/mediaparse/source"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "usage: %s <file.mp4|url>...\n", os.Args[0])
		os.Exit(1)
	}

	level := slog.LevelWarn
	if os.Getenv("DEBUG") != "" {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	var slack int64
	if v := os.Getenv("MEDIAPARSE_SLACK"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: MEDIAPARSE_SLACK: %v\n", err)
			os.Exit(1)
		}
		slack = n
	}

	inputs := os.Args[1:]
	out := make([]bytes.Buffer, len(inputs))
	g, ctx := errgroup.WithContext(context.Background())
	g.SetLimit(4)
	for i, src := range inputs {
		g.Go(func() error {
			if err := probe(ctx, &out[i], src, log, slack); err != nil {
				return fmt.Errorf("%s: %w", src, err)
			}
			return nil
		})
	}
	err := g.Wait()
	for i := range out {
		os.Stdout.Write(out[i].Bytes())
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func readerFor(src string) source.Reader {
	if strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://") {
		return source.HTTP{}
	}
	return source.File{}
}

func probe(ctx context.Context, w io.Writer, src string, log *slog.Logger, slack int64) error {
	opts := mediaparse.Options{
		Reader: readerFor(src),
		Logger: log.With("source", src),
		Slack:  slack,
	}
	res, err := mediaparse.Parse(ctx, src, opts)
	if err != nil {
		return err
	}

	keyframes := res.Keyframes
	if keyframes == nil && res.VideoCodec != "" {
		// Fragmented files only list keyframes after a full pass; the hints
		// of the first pass spare the second one from re-reading structure.
		opts.Fields = media.FieldSlowKeyframes
		opts.Hints = res.Hints
		slow, err := mediaparse.Parse(ctx, src, opts)
		if err != nil {
			return err
		}
		keyframes = slow.SlowKeyframes
	}

	fmt.Fprintf(w, "%s: %s, %d bytes, %.2fs\n", src, res.Container, res.Size, res.DurationInSeconds)
	if res.IsFragmented {
		fmt.Fprintln(w, "  Fragmented")
	}
	fmt.Fprintln(w)
	for i, t := range res.Tracks {
		fmt.Fprintf(w, "Track %d: %s (%s)\n", i, t.Codec, t.Kind)
		if t.Timescale > 0 {
			fmt.Fprintf(w, "  Duration: %.2fs\n", float64(t.Duration)/float64(t.Timescale))
		}
		fmt.Fprintf(w, "  TimeScale: %d\n", t.Timescale)
		switch t.Kind {
		case media.Video:
			fmt.Fprintf(w, "  Size: %dx%d, rotation %d\n", t.Width, t.Height, t.Rotation)
		case media.Audio:
			fmt.Fprintf(w, "  Audio: %d Hz, %d channels\n", t.SampleRate, t.Channels)
		}
		if t.Language != "" {
			fmt.Fprintf(w, "  Language: %s\n", t.Language)
		}
		fmt.Fprintln(w)
	}
	if res.VideoCodec == "" {
		return nil
	}

	fmt.Fprintf(w, "  Fps: %.3f\n", res.Fps)
	fmt.Fprintln(w, "  Keyframes:")
	var intervals []float64
	for j, k := range keyframes {
		if j >= 20 {
			fmt.Fprintf(w, "    ... (%d more keyframes)\n", len(keyframes)-j)
			break
		}
		fmt.Fprintf(w, "    [%5d] %.3fs @%d", j, k.PresentationTime, k.Offset)
		if j > 0 {
			d := k.PresentationTime - keyframes[j-1].PresentationTime
			intervals = append(intervals, d)
			fmt.Fprintf(w, " (%.3fs since last)", d)
		}
		fmt.Fprintln(w)
	}
	fmt.Fprintf(w, "\n  Total keyframes: %d\n", len(keyframes))
	if len(intervals) > 0 {
		fmt.Fprintf(w, "  Keyframe interval: avg=%.3fs min=%.3fs max=%.3fs\n",
			average(intervals), minimum(intervals), maximum(intervals))
	}
	fmt.Fprintln(w)
	return nil
}

func average(vals []float64) float64 {
	sum := 0.0
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}

func minimum(vals []float64) float64 {
	m := vals[0]
	for _, v := range vals {
		m = min(m, v)
	}
	return m
}

func maximum(vals []float64) float64 {
	m := vals[0]
	for _, v := range vals {
		m = max(m, v)
	}
	return m
}
