// trainer.go
// The alternating InfoGAN update. Each step runs the discriminator
// phase against one real batch and one detached fake batch, then the
// generator + auxiliary phase on a fresh tracked sample. Three Adam
// partitions, one explicit step counter, and no update is ever applied
// on a non-finite loss.

package main

import (
	"fmt"
	"math/rand"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
)

// sheetCols is the width of the diagnostic sample grid: one row per
// category, the first continuous code sweeping -1..1 across columns.
const sheetCols = 8

// StepStats reports what one training step did.
type StepStats struct {
	DLoss       float64
	GLoss       float64
	AdvLoss     float64
	CatLoss     float64
	ContLoss    float64
	DiscStepped bool
}

// Trainer drives the minimax + mutual-information objective. The step
// counter is explicit state here; the discriminator update fires only
// when step % DiscEvery == 0 so it cannot outrun the generator.
type Trainer struct {
	cfg  Config
	gen  *Generator
	disc *Discriminator
	opt  *Adam
	rng  *rand.Rand

	genParams  []*Tensor
	discParams []*Tensor
	auxParams  []*Tensor

	step  int
	sweep *LatentBatch

	metrics *MetricsDB
}

// NewTrainer wires the networks to their optimizer partitions. metrics
// may be nil; diagnostics then stay on stdout.
func NewTrainer(cfg Config, gen *Generator, disc *Discriminator, metrics *MetricsDB) *Trainer {
	rng := rand.New(rand.NewSource(cfg.Seed))
	return &Trainer{
		cfg:        cfg,
		gen:        gen,
		disc:       disc,
		opt:        NewAdam(cfg),
		rng:        rng,
		genParams:  gen.Params(),
		discParams: disc.DiscParams(),
		auxParams:  disc.AuxParams(),
		sweep:      SweepLatent(rng, cfg, sheetCols),
		metrics:    metrics,
	}
}

// Step reports how many steps have completed.
func (t *Trainer) Step() int { return t.step }

// Resume sets the step counter when continuing from a checkpoint.
func (t *Trainer) Resume(step int) { t.step = step }

// TrainStep runs one full step against one real batch.
func (t *Trainer) TrainStep(real *Tensor) (StepStats, error) {
	var st StepStats

	// Discriminator phase. The fake batch is generated detached: the
	// generator must not receive gradients from the discriminator's
	// own update.
	lat := SampleLatent(t.rng, t.cfg, real.Shape[0])
	realLoss := BCEWithLogits(t.disc.ForwardRF(real, true), 1)

	setGrad(false)
	fakeDet := t.gen.Forward(lat.X, true)
	setGrad(true)
	fakeLoss := BCEWithLogits(t.disc.ForwardRF(fakeDet, true), 0)

	dLoss := realLoss.Add(fakeLoss)
	st.DLoss = float64(dLoss.Data[0])
	if !isFinite(st.DLoss) {
		return st, errors.Errorf("step %d: discriminator loss is not finite (%v)", t.step, st.DLoss)
	}
	if t.step%t.cfg.DiscEvery == 0 {
		Backward(dLoss)
		t.opt.Step(t.discParams, "disc", t.cfg.LearningRate)
		st.DiscStepped = true
	}

	// Generator + auxiliary phase on a fresh sample, tracked end to
	// end. The retained label and code are the reconstruction targets.
	lat = SampleLatent(t.rng, t.cfg, real.Shape[0])
	fake := t.gen.Forward(lat.X, true)
	logit, catLogits, contEst := t.disc.Forward(fake, true)

	advLoss := BCEWithLogits(logit, 1)
	catLoss := SoftmaxCrossEntropy(catLogits, lat.Labels)
	contLoss := MSELoss(contEst, lat.Cont)
	gLoss := advLoss.Add(catLoss).Add(contLoss)

	st.AdvLoss = float64(advLoss.Data[0])
	st.CatLoss = float64(catLoss.Data[0])
	st.ContLoss = float64(contLoss.Data[0])
	st.GLoss = float64(gLoss.Data[0])
	if !isFinite(st.GLoss) {
		return st, errors.Errorf("step %d: generator loss is not finite (%v)", t.step, st.GLoss)
	}

	Backward(gLoss)
	t.opt.Step(t.genParams, "gen", t.cfg.LearningRate)
	t.opt.Step(t.auxParams, "aux", t.cfg.LearningRate)
	// The shared backward pass also filled the trunk's gradients. The
	// trunk belongs to the discriminator partition, so they are dropped
	// here, never applied.
	zeroGrads(t.discParams)

	t.step++
	return st, nil
}

// Train runs the full schedule: shuffled full batches per epoch,
// periodic diagnostics, checkpoints at every epoch boundary.
func (t *Trainer) Train(ds *Dataset) error {
	var sumD, sumG, sumCat, sumCont float64
	window := 0
	start := time.Now()
	lastLog := start

	fmt.Printf("[train] %d images, batch %d, %d epochs, disc every %d steps (blas=%v)\n",
		ds.Len(), t.cfg.BatchSize, t.cfg.Epochs, t.cfg.DiscEvery, hasBLAS)

	for epoch := 1; epoch <= t.cfg.Epochs; epoch++ {
		batches := ds.Batches(t.rng, t.cfg.BatchSize)
		if len(batches) == 0 {
			return errors.Errorf("dataset of %d images yields no full batch of %d", ds.Len(), t.cfg.BatchSize)
		}
		for _, idx := range batches {
			st, err := t.TrainStep(ds.Gather(idx))
			if err != nil {
				return err
			}
			sumD += st.DLoss
			sumG += st.GLoss
			sumCat += st.CatLoss
			sumCont += st.ContLoss
			window++

			if t.step%t.cfg.LogInterval == 0 {
				w := float64(window)
				ips := float64(window*t.cfg.BatchSize) / time.Since(lastLog).Seconds()
				fmt.Printf("[train] epoch %d step %d | loss_d %.4f | loss_g %.4f | cat %.4f | cont %.4f | %.1f img/s\n",
					epoch, t.step, sumD/w, sumG/w, sumCat/w, sumCont/w, ips)
				if t.metrics != nil {
					t.metrics.LogScalar(t.step, "loss_d", sumD/w)
					t.metrics.LogScalar(t.step, "loss_g", sumG/w)
					t.metrics.LogScalar(t.step, "loss_cat", sumCat/w)
					t.metrics.LogScalar(t.step, "loss_cont", sumCont/w)
					t.metrics.LogScalar(t.step, "images_per_sec", ips)
				}
				if err := t.writeSamples(); err != nil {
					fmt.Printf("[train] WARNING: sample sheet not written: %v\n", err)
				}
				sumD, sumG, sumCat, sumCont = 0, 0, 0, 0
				window = 0
				lastLog = time.Now()
			}
		}
		if err := t.SaveCheckpoints(); err != nil {
			return err
		}
		fmt.Printf("[train] epoch %d/%d complete (%d steps)\n", epoch, t.cfg.Epochs, t.step)
	}
	fmt.Printf("[train] done: %d steps in %s\n", t.step, time.Since(start).Round(time.Second))
	return nil
}

// writeSamples renders the fixed diagnostic sweep through the current
// generator, eval mode.
func (t *Trainer) writeSamples() error {
	setGrad(false)
	defer setGrad(true)
	imgs := t.gen.Forward(t.sweep.X, false)
	name := filepath.Join(t.cfg.OutDir, fmt.Sprintf("samples_%06d.png", t.step))
	return SaveSampleSheet(name, imgs, sheetCols, fmt.Sprintf("step %d", t.step))
}

// SaveCheckpoints writes both parameter blobs.
func (t *Trainer) SaveCheckpoints() error {
	if err := SaveCheckpoint(t.cfg.CkptPath(t.cfg.GenCkpt), t.step, t.gen.State()); err != nil {
		return err
	}
	if err := SaveCheckpoint(t.cfg.CkptPath(t.cfg.DiscCkpt), t.step, t.disc.State()); err != nil {
		return err
	}
	fmt.Printf("[ckpt] saved %s, %s (step %d)\n",
		t.cfg.CkptPath(t.cfg.GenCkpt), t.cfg.CkptPath(t.cfg.DiscCkpt), t.step)
	return nil
}
