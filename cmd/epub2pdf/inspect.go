package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/yuanying/epub2pdf/internal/epub"
	"github.com/yuanying/epub2pdf/internal/pdfinfo"
)

func newInspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <input.epub>",
		Short: "Show the metadata, spine, manifest and cover of an EPUB file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return inspectBook(cmd.OutOrStdout(), args[0])
		},
	}
}

func newPDFInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pdfinfo <file.pdf>",
		Short: "Show pages, bookmarks and document information of a PDF file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			info, err := pdfinfo.InspectFile(args[0])
			if err != nil {
				return err
			}
			printPDFInfo(cmd.OutOrStdout(), args[0], info)
			return nil
		},
	}
}

func inspectBook(w io.Writer, path string) error {
	tmp, err := os.MkdirTemp("", "epub2pdf-inspect-*")
	if err != nil {
		return err
	}
	defer os.RemoveAll(tmp)

	archive, err := epub.Extract(path, tmp)
	if err != nil {
		return err
	}
	book, err := epub.ParseBook(archive)
	if err != nil {
		return err
	}
	md := book.OPF.Metadata

	fmt.Fprintf(w, "File:       %s\n", path)
	fmt.Fprintf(w, "Package:    %s\n", book.OPFPath)
	fmt.Fprintf(w, "Title:      %s\n", md.Title)
	fmt.Fprintf(w, "Author:     %s\n", book.Author())
	fmt.Fprintf(w, "Language:   %s\n", md.Language)
	fmt.Fprintf(w, "Identifier: %s\n", md.Identifier)
	if md.Publisher != "" {
		fmt.Fprintf(w, "Publisher:  %s\n", md.Publisher)
	}
	if md.Date != "" {
		fmt.Fprintf(w, "Date:       %s\n", md.Date)
	}
	if book.Cover != nil {
		fmt.Fprintf(w, "Cover:      %s (%s, via %s)\n", book.Cover.Href, book.Cover.MediaType, book.Cover.DetectionMethod)
	} else {
		fmt.Fprintln(w, "Cover:      none")
	}

	fmt.Fprintf(w, "\nSpine (%d):\n", len(book.Chapters))
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, ch := range book.Chapters {
		linear := ""
		if !ch.Linear {
			linear = "non-linear"
		}
		fmt.Fprintf(tw, "  %d\t%s\t%s\t%s\t%s\n", ch.Index, ch.ID, ch.Href, ch.MediaType, linear)
	}
	tw.Flush()

	fmt.Fprintf(w, "\nManifest (%d):\n", len(book.OPF.ManifestOrder))
	tw = tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, id := range book.OPF.ManifestOrder {
		item := book.OPF.Manifest[id]
		fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\n", item.ID, item.Href, item.MediaType, strings.Join(item.Properties, " "))
	}
	return tw.Flush()
}

func printPDFInfo(w io.Writer, path string, info *pdfinfo.Info) {
	fmt.Fprintf(w, "File:        %s\n", path)
	fmt.Fprintf(w, "Pages:       %d\n", info.Pages)
	if len(info.PageSizes) > 0 {
		s := info.PageSizes[0]
		fmt.Fprintf(w, "Page size:   %gx%g pt (%.2fx%.2f in)\n", s.Width, s.Height, s.Width/72, s.Height/72)
	}
	fmt.Fprintf(w, "Title:       %s\n", info.Title)
	fmt.Fprintf(w, "Author:      %s\n", info.Author)
	fmt.Fprintf(w, "Creator:     %s\n", info.Creator)
	fmt.Fprintf(w, "Producer:    %s\n", info.Producer)
	fmt.Fprintf(w, "Named dests: %d\n", info.NamedDests)
	fmt.Fprintf(w, "Bookmarks:   %d\n", len(info.Outline))
	for _, item := range info.Outline {
		fmt.Fprintf(w, "  %s%s\n", strings.Repeat("  ", item.Level-1), item.Title)
	}
}
