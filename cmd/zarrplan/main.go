// zarrplan prints the chunks of a Zarr array that a region read touches.
//
//	zarrplan [-region 0:10,5:8] [-align lat=0:10,lon=0:20] <bucket-url>
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	lgtable "github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/memblob"
	"k8s.io/klog/v2"

	"github.com/TuSKan/zarr-index"
	"github.com/TuSKan/zarr-index/index"
)

var (
	flagRegion = flag.String("region", "",
		"Comma-separated start:stop per dimension. Empty selects the whole array.")
	flagAlign = flag.String("align", "",
		"Comma-separated [label=]start:stop target domain. The array is aligned to it "+
			"(permuted by label, translated and broadcast) instead of reading a region.")
)

func main() {
	klog.InitFlags(nil)
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		klog.Errorf("Missing bucket URL of the array to plan. See 'zarrplan -help'")
		os.Exit(1)
	}
	if len(args) > 1 {
		klog.Errorf("Too many arguments. See 'zarrplan -help'.")
		os.Exit(1)
	}
	if *flagRegion != "" && *flagAlign != "" {
		klog.Errorf("-region and -align are mutually exclusive.")
		os.Exit(1)
	}
	if err := report(context.Background(), args[0]); err != nil {
		klog.Errorf("%+v", err)
		os.Exit(1)
	}
}

var (
	headerRowStyle = lipgloss.NewStyle().Reverse(true).
			Padding(0, 2, 0, 2).Align(lipgloss.Center)

	oddRowStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFF")).
			PaddingLeft(1).PaddingRight(1)
	evenRowStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#999")).
			PaddingLeft(1).PaddingRight(1)

	titleStyle = lipgloss.NewStyle().Bold(true).Padding(1, 4, 1, 4)
)

func newPlainTable() *lgtable.Table {
	return lgtable.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("99"))).
		StyleFunc(func(row, col int) (s lipgloss.Style) {
			if row == lgtable.HeaderRow {
				return headerRowStyle
			}
			if row%2 == 0 {
				s = oddRowStyle
			} else {
				s = evenRowStyle
			}
			if col == 0 {
				return s.Align(lipgloss.Left)
			}
			return s.Align(lipgloss.Right)
		})
}

func report(ctx context.Context, url string) error {
	reader, err := zarr.NewReader(ctx, url)
	if err != nil {
		return err
	}
	defer func() {
		if err := reader.Close(); err != nil {
			klog.Warningf("Failed to close %q: %v", url, err)
		}
	}()

	transform, err := requestTransform(reader.Domain(), *flagRegion, *flagAlign)
	if err != nil {
		return err
	}
	klog.V(1).Infof("Planning %v", transform)
	plan, err := reader.Plan(transform)
	if err != nil {
		return err
	}

	meta := reader.Metadata()
	fmt.Println(titleStyle.Render("Array"))
	table := newPlainTable()
	table.Row("url", url)
	table.Row("domain", reader.Domain().String())
	table.Row("chunks", fmt.Sprint(meta.Chunks))
	table.Row("dtype", meta.DType)
	compressor := "none"
	if meta.Compressor != nil {
		compressor = meta.Compressor.ID
	}
	table.Row("compressor", compressor)
	fmt.Println(table.Render())

	fmt.Println(titleStyle.Render("Chunks"))
	table = newPlainTable().Headers("Key", "Cell", "Elements", "Bytes")
	var totalElements, totalBytes int64
	for _, req := range plan {
		table.Row(req.Key, fmt.Sprint(req.Cell), humanize.Comma(req.NumElements), humanize.Bytes(uint64(req.NumBytes)))
		totalElements += req.NumElements
		totalBytes += req.NumBytes
	}
	fmt.Println(table.Render())
	fmt.Printf("%s chunks, %s elements, %s\n",
		humanize.Comma(int64(len(plan))), humanize.Comma(totalElements), humanize.Bytes(uint64(totalBytes)))
	return nil
}

// requestTransform builds the transform to plan: the identity over a region
// of the array, or the alignment of the array onto a target domain.
func requestTransform(domain index.Domain, region, align string) (index.Transform, error) {
	if align != "" {
		target, err := parseDomain(align)
		if err != nil {
			return index.Transform{}, err
		}
		return index.AlignDomainTo(domain, target)
	}
	if region == "" {
		return index.IdentityTransform(domain), nil
	}
	box, err := parseDomain(region)
	if err != nil {
		return index.Transform{}, err
	}
	if box.Rank() != domain.Rank() {
		return index.Transform{}, errors.Errorf("-region has %d dimensions, array has %d", box.Rank(), domain.Rank())
	}
	for i := 0; i < box.Rank(); i++ {
		if !domain.Dim(i).ContainsInterval(box.Dim(i).Interval) {
			return index.Transform{}, errors.Wrapf(index.ErrOutOfRange, "-region %v is outside the array domain %v", box.Dim(i).Interval, domain.Dim(i).Interval)
		}
	}
	box, err = box.WithLabels(domain.Labels()...)
	if err != nil {
		return index.Transform{}, err
	}
	return index.IdentityTransform(box), nil
}

// parseDomain parses comma-separated "[label=]start:stop" dimensions.
func parseDomain(s string) (index.Domain, error) {
	var dims []index.Dimension
	for i, part := range strings.Split(s, ",") {
		var dim index.Dimension
		if label, rest, found := strings.Cut(part, "="); found {
			dim.Label, part = strings.TrimSpace(label), rest
		}
		startStr, stopStr, found := strings.Cut(part, ":")
		if !found {
			return index.Domain{}, errors.Errorf("dimension %d: %q is not start:stop", i, part)
		}
		start, err := strconv.ParseInt(strings.TrimSpace(startStr), 10, 64)
		if err != nil {
			return index.Domain{}, errors.Wrapf(err, "dimension %d: invalid start", i)
		}
		stop, err := strconv.ParseInt(strings.TrimSpace(stopStr), 10, 64)
		if err != nil {
			return index.Domain{}, errors.Wrapf(err, "dimension %d: invalid stop", i)
		}
		if dim.Interval, err = index.IntervalClosedOpen(start, stop); err != nil {
			return index.Domain{}, errors.WithMessagef(err, "dimension %d", i)
		}
		dims = append(dims, dim)
	}
	return index.NewDomain(dims...)
}
