package main

import "github.com/terisuke/pdf-vector-crop-rasterizer/cmd/dataset/cmd"

func main() {
	cmd.Execute()
}
