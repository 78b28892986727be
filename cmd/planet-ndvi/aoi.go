package main

import (
	"errors"

	bannercolor "github.com/fatih/color"
	"github.com/forest-guardian/planet-ndvi/internal/delivery"
	"github.com/paulmach/orb"
	"github.com/spf13/cobra"
)

func newAOICommand(opts *options) *cobra.Command {
	var name string
	var bounds []float64
	var epsg int
	var buffer float64
	cmd := &cobra.Command{
		Use:   "aoi",
		Short: "Create an AOI polygon and its cutline from a rectangular extent",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(bounds) != 4 {
				return errors.New("--bounds takes minX,minY,maxX,maxY")
			}
			cfg := loadConfig(opts)
			bound := orb.Bound{Min: orb.Point{bounds[0], bounds[1]}, Max: orb.Point{bounds[2], bounds[3]}}

			def, err := delivery.NewRunner(cfg, delivery.Services{}).CreateAOI(name, bound, buffer, epsg)
			if err != nil {
				return err
			}
			centroid, err := def.Centroid()
			if err != nil {
				return err
			}
			b := def.Bound()
			bannercolor.Green("%s: centroid %.6f,%.6f bounds %.6f,%.6f,%.6f,%.6f",
				name, centroid.X(), centroid.Y(), b.Min.X(), b.Min.Y(), b.Max.X(), b.Max.Y())
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "AOI name")
	cmd.Flags().Float64SliceVar(&bounds, "bounds", nil, "extent as minX,minY,maxX,maxY")
	cmd.Flags().IntVar(&epsg, "epsg", 4326, "EPSG code of the extent")
	cmd.Flags().Float64Var(&buffer, "buffer", 0, "distance added on every side, in extent units")
	cmd.MarkFlagRequired("name")
	cmd.MarkFlagRequired("bounds")
	return cmd
}
