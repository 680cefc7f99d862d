package main

import (
	"flag"
	"os"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/mogaika/hlpack/config"
	"github.com/mogaika/hlpack/drivers"
	"github.com/mogaika/hlpack/drivers/gcf"
	"github.com/mogaika/hlpack/pack"
	"github.com/mogaika/hlpack/stream"
)

func main() {
	var inPath, outPath, typeName, encoding, configPath string
	var blockSize uint
	flag.StringVar(&inPath, "i", "", "Path to files folder")
	flag.StringVar(&outPath, "o", "", "Output package")
	flag.StringVar(&typeName, "t", "", "Package type (vpk, wad, pak, gcf), defaults to the output extension")
	flag.StringVar(&encoding, "encoding", "", "Name encoding (see hlextract -encodings)")
	flag.UintVar(&blockSize, "block-size", gcf.DEFAULT_BLOCK_SIZE, "GCF block size")
	flag.StringVar(&configPath, "config", config.DefaultConfigFile, "Config file")
	flag.Parse()

	if inPath == "" || outPath == "" {
		flag.PrintDefaults()
		os.Exit(2)
	}

	opts, err := config.Load(configPath)
	if err != nil {
		log.Fatal(err)
	}
	if encoding != "" {
		opts.Encoding = encoding
	}
	if err := opts.SetupLogging(); err != nil {
		log.Fatal(err)
	}
	enc, err := opts.GetEncoding()
	if err != nil {
		log.Fatal(err)
	}

	if typeName == "" {
		typeName = strings.TrimPrefix(filepath.Ext(outPath), ".")
	}
	t := pack.TypeByName(typeName)
	format := drivers.NewRegistry().ByType(t)
	if format == nil {
		log.Fatalf("[hlpack] Unknown package type %q", typeName)
	}
	ser, ok := format.(pack.Serializer)
	if !ok {
		log.Fatalf("[hlpack] %v packages cannot be written", t)
	}

	fs := afero.NewOsFs()
	b := pack.NewBuilder(inPath)
	b.Tree().Encoding = enc
	if err := b.AddDir(fs, inPath); err != nil {
		log.Fatal(err)
	}
	root := b.Tree().Root
	log.Infof("[hlpack] Packing %d files in %d folders into '%s' (%v)",
		root.FileCount(true), root.FolderCount(true), outPath, t)

	out, err := stream.OpenFile(fs, outPath, stream.ModeWrite|stream.ModeCreate)
	if err != nil {
		log.Fatal(err)
	}
	if g, ok := format.(*gcf.Format); ok {
		err = g.SerializeWith(b.Tree(), out, gcf.WriteOptions{BlockSize: uint32(blockSize)})
	} else {
		err = ser.Serialize(b.Tree(), out)
	}
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		fs.Remove(outPath)
		log.Fatal(err)
	}
	log.Info("[hlpack] Complete !")
}
