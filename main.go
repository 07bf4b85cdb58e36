// main.go
// Mode driver: train the InfoGAN on a face directory, index the trained
// features, query nearest neighbors, export the 2D embedding, or render
// a sample sheet from a checkpoint.
//
//	visage -data faces/ -out run1/ -train -epochs 30
//	visage -data faces/ -out run1/ -index
//	visage -out run1/ -similar query.jpg -k 8
//	visage -out run1/ -export embedding.json
//	visage -out run1/ -sample sheet.png

package main

import (
	"flag"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

func main() {
	cfg := DefaultConfig()
	flag.StringVar(&cfg.DataDir, "data", cfg.DataDir, "directory of face images")
	flag.StringVar(&cfg.OutDir, "out", cfg.OutDir, "run directory for checkpoints, samples and metrics")
	flag.IntVar(&cfg.BatchSize, "batch", cfg.BatchSize, "batch size")
	flag.IntVar(&cfg.Epochs, "epochs", cfg.Epochs, "training epochs")
	flag.IntVar(&cfg.NoiseDim, "z", cfg.NoiseDim, "noise dimension")
	flag.IntVar(&cfg.NumCategories, "cats", cfg.NumCategories, "categorical code cardinality")
	flag.IntVar(&cfg.ContinuousDim, "cont", cfg.ContinuousDim, "continuous code dimension")
	flag.IntVar(&cfg.BaseChannels, "base", cfg.BaseChannels, "base channel width")
	flag.IntVar(&cfg.ImageSize, "res", cfg.ImageSize, "image resolution")
	flag.Float64Var(&cfg.LearningRate, "lr", cfg.LearningRate, "adam learning rate")
	flag.Float64Var(&cfg.Beta1, "beta1", cfg.Beta1, "adam beta1 (momentum)")
	flag.Float64Var(&cfg.GradClip, "clip", cfg.GradClip, "gradient clip, 0 disables")
	flag.IntVar(&cfg.DiscEvery, "discevery", cfg.DiscEvery, "discriminator update stride")
	flag.IntVar(&cfg.LogInterval, "loginterval", cfg.LogInterval, "steps between diagnostics")
	flag.IntVar(&cfg.TruncDepth, "depth", cfg.TruncDepth, "feature cut: 1-4 after that conv stage, 5 shared dense")
	flag.IntVar(&cfg.Workers, "workers", cfg.Workers, "dataset loader workers")
	flag.Int64Var(&cfg.Seed, "seed", cfg.Seed, "random seed")

	train := flag.Bool("train", false, "train the networks")
	index := flag.Bool("index", false, "embed the dataset and store the feature index")
	similar := flag.String("similar", "", "query image for nearest-neighbor search")
	k := flag.Int("k", 8, "neighbors to return")
	export := flag.String("export", "", "embedding JSON output path")
	sample := flag.String("sample", "", "sample sheet PNG output path")
	flag.Parse()

	if err := run(cfg, *train, *index, *similar, *k, *export, *sample); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run(cfg Config, train, index bool, similar string, k int, export, sample string) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	rand.Seed(cfg.Seed)
	if err := os.MkdirAll(cfg.OutDir, 0o755); err != nil {
		return errors.Wrapf(err, "create %s", cfg.OutDir)
	}

	switch {
	case train:
		return runTrain(cfg)
	case index:
		return runIndex(cfg)
	case similar != "":
		return runSimilar(cfg, similar, k)
	case export != "":
		return runExport(cfg, export)
	case sample != "":
		return runSample(cfg, sample)
	}
	return errors.New("nothing to do: pass -train, -index, -similar, -export or -sample")
}

func runTrain(cfg Config) error {
	ds, err := LoadDataset(cfg)
	if err != nil {
		return err
	}
	metrics, err := OpenMetrics(cfg.MetricsPath())
	if err != nil {
		return err
	}
	defer metrics.Close()
	if err := metrics.BeginRun(cfg); err != nil {
		return err
	}

	gen := NewGenerator(cfg)
	disc := NewDiscriminator(cfg)
	genStep := loadOrFresh(cfg.CkptPath(cfg.GenCkpt), gen.State())
	discStep := loadOrFresh(cfg.CkptPath(cfg.DiscCkpt), disc.State())

	t := NewTrainer(cfg, gen, disc, metrics)
	if step := max(genStep, discStep); step > 0 {
		t.Resume(step)
		fmt.Printf("[train] resuming at step %d\n", step)
	}
	if err := t.Train(ds); err != nil {
		return err
	}
	return t.SaveCheckpoints()
}

func runIndex(cfg Config) error {
	ds, err := LoadDataset(cfg)
	if err != nil {
		return err
	}
	disc := NewDiscriminator(cfg)
	loadOrFresh(cfg.CkptPath(cfg.DiscCkpt), disc.State())
	ff := NewFeatureFunc(disc, cfg)
	feats, paths := BuildFeatureMatrix(ff, ds)

	metrics, err := OpenMetrics(cfg.MetricsPath())
	if err != nil {
		return err
	}
	defer metrics.Close()
	if err := metrics.BeginRun(cfg); err != nil {
		return err
	}
	if err := metrics.SaveFeatures(paths, feats); err != nil {
		return err
	}
	fmt.Printf("[knn] indexed %d images at %d dims (depth %d)\n", len(paths), ff.Dim(), cfg.TruncDepth)
	return nil
}

func runSimilar(cfg Config, query string, k int) error {
	metrics, err := OpenMetrics(cfg.MetricsPath())
	if err != nil {
		return err
	}
	defer metrics.Close()
	paths, feats, err := metrics.LoadFeatures()
	if err != nil {
		return err
	}

	disc := NewDiscriminator(cfg)
	loadOrFresh(cfg.CkptPath(cfg.DiscCkpt), disc.State())
	ff := NewFeatureFunc(disc, cfg)
	if feats.Shape()[1] != ff.Dim() {
		return errors.Errorf("stored features are %d-dim but depth %d yields %d; re-run -index",
			feats.Shape()[1], cfg.TruncDepth, ff.Dim())
	}

	img, err := LoadImageTensor(query, cfg.ImageSize)
	if err != nil {
		return err
	}
	hits := KNN(feats, ff.Extract(img), k)
	if len(hits) == 0 {
		fmt.Println("[knn] no neighbors")
		return nil
	}
	for rank, h := range hits {
		fmt.Printf("[knn] %2d. %s  (dist %.6f)\n", rank+1, paths[h.Index], h.Distance)
	}
	return nil
}

func runExport(cfg Config, out string) error {
	metrics, err := OpenMetrics(cfg.MetricsPath())
	if err != nil {
		return err
	}
	defer metrics.Close()
	paths, feats, err := metrics.LoadFeatures()
	if err != nil {
		return err
	}

	pts, err := PCAProjector{}.Project(feats)
	if err != nil {
		return err
	}
	norm := NormalizePoints(pts)
	if err := WriteEmbeddingJSON(out, paths, norm); err != nil {
		return err
	}
	png := strings.TrimSuffix(out, filepath.Ext(out)) + ".png"
	if err := SaveScatterPNG(png, norm); err != nil {
		return err
	}
	fmt.Printf("[export] wrote %d points to %s and %s\n", len(norm), out, png)
	return nil
}

func runSample(cfg Config, out string) error {
	gen := NewGenerator(cfg)
	loadOrFresh(cfg.CkptPath(cfg.GenCkpt), gen.State())

	rng := rand.New(rand.NewSource(cfg.Seed))
	sweep := SweepLatent(rng, cfg, sheetCols)
	setGrad(false)
	defer setGrad(true)
	imgs := gen.Forward(sweep.X, false)
	if err := SaveSampleSheet(out, imgs, sheetCols, "category rows, continuous sweep"); err != nil {
		return err
	}
	fmt.Printf("[export] wrote sample sheet %s\n", out)
	return nil
}
