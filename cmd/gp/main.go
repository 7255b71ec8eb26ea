// Command gp is the preprocessor CLI: it loads a polygon-soup mesh file,
// runs it through the binary-BVH builder, collapser and compressor, and
// writes the result as a scene file ready for the traversal kernel
// (spec.md §6). It is grounded on the teacher's main.go app-shell pattern
// (urfave/cli, global -v/-vv flags, cmd.CompileScene's read-then-write
// command body).
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli"

	"github.com/achilleasa/gatling/log"
	"github.com/achilleasa/gatling/scene"
	"github.com/achilleasa/gatling/scene/bvh"
	"github.com/achilleasa/gatling/scene/reader"
	"github.com/achilleasa/gatling/scene/sceneio"
)

var logger = log.New("gp")

func setupLogging(ctx *cli.Context) {
	if ctx.GlobalBool("v") {
		log.SetLevel(log.Info)
	}
	if ctx.GlobalBool("vv") {
		log.SetLevel(log.Debug)
	}
}

func main() {
	app := cli.NewApp()
	app.Name = "gp"
	app.Usage = "convert a polygon-soup mesh into a compressed-wide-BVH scene file"
	app.ArgsUsage = "<input-mesh-file> <output.gsd>"
	app.Version = "0.0.1"
	app.Flags = []cli.Flag{
		cli.BoolFlag{Name: "v", Usage: "enable verbose logging"},
		cli.BoolFlag{Name: "vv", Usage: "enable even more verbose logging"},
		cli.UintFlag{Name: "image-width", Value: 1200, Usage: "output image width recorded in the scene header"},
		cli.UintFlag{Name: "image-height", Value: 1200, Usage: "output image height recorded in the scene header"},
		cli.Float64Flag{Name: "sr-front", Value: 1.0, Usage: "spatial reserve factor for geometry in front of the camera"},
		cli.Float64Flag{Name: "sr-back", Value: 10.0, Usage: "spatial reserve factor for geometry behind the camera"},
		cli.Float64Flag{Name: "sr-outside-frustum", Value: 100.0, Usage: "spatial reserve factor for geometry outside the camera frustum"},
	}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx *cli.Context) error {
	setupLogging(ctx)

	if ctx.NArg() != 2 {
		cli.ShowAppHelp(ctx)
		return cli.NewExitError("gp: expected exactly <input-mesh-file> <output.gsd>", 1)
	}
	inputPath := ctx.Args().Get(0)
	outputPath := ctx.Args().Get(1)

	// sr-front/sr-back/sr-outside-frustum classify geometry by its position
	// relative to the camera frustum and apply a per-region reserve factor
	// during SBVH duplication; the reference implementation parses and
	// validates all three but has never wired the classification pass, so
	// this port accepts them for command-line compatibility and logs them
	// without applying them (see DESIGN.md).
	logger.Debugf("sr-front=%.3f sr-back=%.3f sr-outside-frustum=%.3f (accepted, not yet applied)",
		ctx.Float64("sr-front"), ctx.Float64("sr-back"), ctx.Float64("sr-outside-frustum"))

	sc, err := reader.ReadWavefront(inputPath)
	if err != nil {
		return cli.NewExitError(fmt.Sprintf("gp: %s", err), 1)
	}
	sc.ImageWidth = uint32(ctx.Uint("image-width"))
	sc.ImageHeight = uint32(ctx.Uint("image-height"))

	if err := buildAndWrite(sc, outputPath); err != nil {
		return cli.NewExitError(fmt.Sprintf("gp: %s", err), 1)
	}

	logger.Noticef("wrote %s", outputPath)
	return nil
}

// buildAndWrite runs the C3->C4->C5->C6 pipeline spec.md §2 lays out: build
// the binary BVH, collapse it into an 8-wide BVH, relinearize the face
// buffer to match the collapsed leaf order, compress the result into
// 80-byte CWBVH nodes, then write the fixed-layout scene file.
func buildAndWrite(sc *scene.Scene, outputPath string) error {
	params := bvh.DefaultParams()

	binBVH, err := bvh.Build(sc.Faces, sc.Vertices, params)
	if err != nil {
		return err
	}

	wide := bvh.Collapse(binBVH, 8, bvh.NodeTraversalCost, params.FaceIntersectionCost).Linearize()
	wide, faces := wide.RelinearizeFaces(binBVH.Faces)
	nodes := bvh.Compress(wide)

	return sceneio.Write(outputPath, nodes, faces, sc.Vertices, sc.Materials, sc.Bounds(), sc.Camera, sc.ImageWidth, sc.ImageHeight)
}
