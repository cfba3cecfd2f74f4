// Command mfdump reads a media file and prints its box structure.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/tetsuo/mediaparse/bmff"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "usage: %s <file.mp4>\n", os.Args[0])
		os.Exit(1)
	}

	f, err := os.Open(os.Args[1])
	if err != nil {
		fmt.Fprintf(os.Stderr, "error opening file: %v\n", err)
		os.Exit(1)
	}
	defer f.Close()

	sc := bmff.NewScanner(f, 0)
	for sc.Next() {
		h := sc.Header()

		// Media data is only reported, everything else is decoded in full.
		if h.Type == bmff.TypeMdat {
			fmt.Printf("[%s] @%d size=%d dataLen=%d\n", h.Type, h.Offset, h.Size, h.Size-int64(h.HeaderSize))
			continue
		}
		raw := make([]byte, h.Size)
		if err := sc.ReadBox(raw); err != nil {
			fmt.Fprintf(os.Stderr, "error reading %s: %v\n", h.Type, err)
			os.Exit(1)
		}
		box, err := bmff.DecodeBox(raw, h.Offset)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error decoding %s @%d: %v\n", h.Type, h.Offset, err)
			continue
		}
		box.Walk(func(b *bmff.Box, depth int) bool {
			printBox(b, depth)
			return true
		})
	}
	if err := sc.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "scan error: %v\n", err)
		os.Exit(1)
	}
}

func printBox(b *bmff.Box, depth int) {
	fmt.Printf("%s[%s] @%d size=%d", strings.Repeat("  ", depth), b.Type, b.Offset, b.Size)
	if bmff.IsFullBox(b.Type) {
		fmt.Printf(" v=%d flags=0x%06x", b.Version, b.Flags)
	}
	printPayload(b.Payload)
	fmt.Println()
}

func printPayload(p bmff.Payload) {
	switch p := p.(type) {
	case *bmff.FtypInfo:
		fmt.Printf(" brand=%s ver=%d", p.MajorBrand, p.MinorVersion)
		if len(p.Compatible) > 0 {
			compat := make([]string, len(p.Compatible))
			for i, c := range p.Compatible {
				compat[i] = c.String()
			}
			fmt.Printf(" compat=[%s]", strings.Join(compat, ","))
		}

	case *bmff.Mvhd:
		fmt.Printf(" timescale=%d duration=%d nextTrackId=%d", p.Timescale, p.Duration, p.NextTrackID)

	case *bmff.Tkhd:
		fmt.Printf(" trackId=%d duration=%d size=%dx%d rotation=%d", p.TrackID, p.Duration, p.Width>>16, p.Height>>16, p.Rotation())

	case *bmff.Mdhd:
		fmt.Printf(" timescale=%d duration=%d lang=%s", p.Timescale, p.Duration, bmff.Language(p.Language))

	case *bmff.Hdlr:
		fmt.Printf(" type=%s name=%q", p.HandlerType, p.Name)

	case *bmff.Stsd:
		fmt.Printf(" entries=%d", p.EntryCount)

	case *bmff.SampleEntry:
		if p.Visual != nil {
			fmt.Printf(" %dx%d compressor=%q", p.Visual.Width, p.Visual.Height, p.Visual.CompressorName)
		}
		if p.Audio != nil {
			fmt.Printf(" ch=%d sampleSize=%d sampleRate=%g", p.Audio.ChannelCount, p.Audio.SampleSize, p.Audio.SampleRate)
		}
		if p.OriginalFormat != p.Format {
			fmt.Printf(" original=%s", p.OriginalFormat)
		}
		if p.Codec != "" {
			fmt.Printf(" codec=%s", p.Codec)
		}

	case *bmff.Stts:
		fmt.Printf(" entries=%d", len(p.Entries))

	case *bmff.Ctts:
		fmt.Printf(" entries=%d", len(p.Entries))

	case *bmff.Stsc:
		fmt.Printf(" entries=%d", len(p.Entries))

	case *bmff.Stsz:
		fmt.Printf(" samples=%d", p.SampleCount)
		if p.SampleSize != 0 {
			fmt.Printf(" sampleSize=%d", p.SampleSize)
		}

	case *bmff.ChunkOffsets:
		fmt.Printf(" entries=%d", len(p.Offsets))

	case *bmff.Stss:
		fmt.Printf(" entries=%d", len(p.SampleNumbers))

	case *bmff.Elst:
		fmt.Printf(" entries=%d", len(p.Entries))

	case *bmff.Mehd:
		fmt.Printf(" fragmentDuration=%d", p.FragmentDuration)

	case *bmff.Trex:
		fmt.Printf(" trackId=%d", p.TrackID)

	case *bmff.Mfhd:
		fmt.Printf(" seq=%d", p.SequenceNumber)

	case *bmff.Tfhd:
		fmt.Printf(" trackId=%d", p.TrackID)

	case *bmff.Tfdt:
		fmt.Printf(" baseMediaDecodeTime=%d", p.BaseMediaDecodeTime)

	case *bmff.Trun:
		fmt.Printf(" entries=%d", len(p.Entries))
		if p.Has(bmff.TrunDataOffsetPresent) {
			fmt.Printf(" dataOffset=%d", p.DataOffset)
		}

	case *bmff.Tfra:
		fmt.Printf(" trackId=%d entries=%d", p.TrackID, len(p.Entries))

	case *bmff.Mfro:
		fmt.Printf(" mfraSize=%d", p.Size)

	case *bmff.Sidx:
		fmt.Printf(" referenceId=%d timescale=%d ept=%d refs=%d", p.ReferenceID, p.Timescale, p.EarliestPresentationTime, len(p.References))

	case *bmff.Colr:
		fmt.Printf(" colourType=%s primaries=%d transfer=%d matrix=%d", p.ColourType, p.Primaries, p.Transfer, p.Matrix)

	case *bmff.Pasp:
		fmt.Printf(" aspect=%d:%d", p.HSpacing, p.VSpacing)

	case *bmff.Opaque:
		if len(p.Data) > 0 {
			fmt.Printf(" (%d bytes)", len(p.Data))
		}
	}
}
