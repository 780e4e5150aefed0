package manifest

import (
	"path/filepath"

	"github.com/kythours/modelvol/internal/data"
)

// Template variables every recipe can rely on. Build callers bind App and
// Models; Hub has a default.
const (
	VarApp    = "App"
	VarModels = "Models"
	VarHub    = "Hub"
)

const (
	ferV5 = "FERPHOTO_zturbo_HF_OPTIMIZED_v5"
	ferV7 = "FERPHOTO_zturbo_HF_OPTIMIZED_v7_H100_3000_copy"
)

var ferSteps = []int{250, 500, 750, 1000, 1250, 1500, 1750, 2000, 2250, 2500, 2750}

// DefaultRecipe is the built-in image-generation model set: diffusion
// models, text encoders, VAE, upscalers, ControlNet and the LoRA series.
func DefaultRecipe() Recipe {
	return Recipe{
		Vars: map[string]string{VarHub: "https://huggingface.co"},
		Items: []Item{
			{URL: "{{.Hub}}/Comfy-Org/z_image_turbo/resolve/main/split_files/diffusion_models/z_image_turbo_bf16.safetensors", Path: "{{.Models}}/diffusion_models/z_image_turbo_bf16.safetensors"},
			{URL: "{{.Hub}}/Kijai/Z-Image_comfy_fp8_scaled/resolve/main/z-image-turbo_fp8_scaled_e4m3fn_KJ.safetensors", Path: "{{.Models}}/diffusion_models/z-image-turbo_fp8_scaled_e4m3fn_KJ.safetensors"},
			{URL: "{{.Hub}}/Comfy-Org/z_image_turbo/resolve/main/split_files/text_encoders/qwen_3_4b.safetensors", Path: "{{.Models}}/text_encoders/qwen_3_4b.safetensors"},
			{URL: "{{.Hub}}/Comfy-Org/z_image_turbo/resolve/main/split_files/vae/ae.safetensors", Path: "{{.Models}}/vae/ae.safetensors"},
			{URL: "{{.Hub}}/worstplayer/Z-Image_Qwen_3_4b_text_encoder_GGUF/resolve/main/Qwen_3_4b-imatrix-IQ4_XS.gguf", Path: "{{.Models}}/text_encoders/Qwen_3_4b-imatrix-IQ4_XS.gguf"},
			{URL: "{{.Hub}}/worstplayer/Z-Image_Qwen_3_4b_text_encoder_GGUF/resolve/main/Qwen_3_4b-Q8_0.gguf", Path: "{{.Models}}/text_encoders/Qwen_3_4b-Q8_0.gguf"},
			{URL: "{{.Hub}}/BennyDaBall/Qwen3-4b-Z-Image-Engineer-V4/resolve/main/Qwen3-4b-Z-Image-Engineer-V4-F16.gguf", Path: "{{.Models}}/text_encoders/Qwen3-4b-Z-Image-Engineer-V4-F16.gguf"},
			{URL: "{{.Hub}}/Thelocallab/2xLexicaRRDBNet_Sharp/resolve/main/2xLexicaRRDBNet_Sharp.pth", Path: "{{.Models}}/upscale_models/2xLexicaRRDBNet_Sharp.pth"},
			{URL: "{{.Hub}}/martin-rizzo/ESRGAN-4x/resolve/main/4x_foolhardy_Remacri.safetensors", Path: "{{.Models}}/upscale_models/4x_foolhardy_Remacri.safetensors"},
			{URL: "{{.Hub}}/jayn7/Z-Image-Turbo-GGUF/resolve/main/z_image_turbo-Q5_K_S.gguf", Path: "{{.Models}}/diffusion_models/z_image_turbo-Q5_K_S.gguf"},
			{URL: "{{.Hub}}/mradermacher/Qwen3-4B-i1-GGUF/resolve/main/Qwen3-4B.i1-Q5_K_S.gguf", Path: "{{.Models}}/text_encoders/Qwen3-4B.i1-Q5_K_S.gguf"},
			{URL: "{{.Hub}}/jayn7/Z-Image-Turbo-GGUF/resolve/main/example_workflow.json", Path: "{{.App}}/user/default/workflows/z_image_turbo_workflow.json"},
			{URL: "{{.Hub}}/alibaba-pai/Z-Image-Turbo-Fun-Controlnet-Union-2.0/resolve/main/Z-Image-Turbo-Fun-Controlnet-Union-2.1.safetensors", Path: "{{.Models}}/controlnet/Z-Image-Turbo-Fun-Controlnet-Union-2.1.safetensors"},
			{URL: "{{.Hub}}/alibaba-pai/Z-Image-Turbo-Fun-Controlnet-Union-2.0/resolve/main/Z-Image-Turbo-Fun-Controlnet-Union-2.1.safetensors", Path: "{{.Models}}/model_patches/Z-Image-Turbo-Fun-Controlnet-Union-2.1.safetensors"},

			// ohwxphoto: final then steps 100..900
			{URL: "{{.Hub}}/kythours/kitoalro/resolve/main/ohwxphoto.safetensors", Path: "{{.Models}}/loras/ohwxphoto.safetensors"},
			{
				URL:   "{{.Hub}}/kythours/kitoalro/resolve/main/ohwxphoto_{{pad 9 .Step}}.safetensors",
				Path:  "{{.Models}}/loras/ohwxphoto_{{pad 9 .Step}}.safetensors",
				Range: &Range{Start: 100, Stop: 1000, Step: 100},
			},

			// v5 is published with a fixed six-zero prefix before a
			// three-digit-minimum step; stored under the nine-digit name.
			{
				URL:   "{{.Hub}}/kythours/FERGIRL/resolve/main/" + ferV5 + "/" + ferV5 + "_000000{{pad 3 .Step}}.safetensors",
				Path:  "{{.Models}}/loras/FERPHOTO/" + ferV5 + "_{{pad 9 .Step}}.safetensors",
				Steps: append(append([]int(nil), ferSteps...), 3000),
			},
			{URL: "{{.Hub}}/kythours/FERGIRL/resolve/main/" + ferV5 + "/" + ferV5 + ".safetensors", Path: "{{.Models}}/loras/FERPHOTO/" + ferV5 + ".safetensors"},
			{URL: "{{.Hub}}/kythours/FERGIRL/resolve/main/" + ferV7 + "/" + ferV7 + ".safetensors", Path: "{{.Models}}/loras/FERPHOTO/" + ferV7 + ".safetensors"},
			{
				URL:   "{{.Hub}}/kythours/FERGIRL/resolve/main/" + ferV7 + "/" + ferV7 + "_{{pad 9 .Step}}.safetensors",
				Path:  "{{.Models}}/loras/FERPHOTO/" + ferV7 + "_{{pad 9 .Step}}.safetensors",
				Steps: append([]int(nil), ferSteps...),
			},
		},
	}
}

// Vars binds the app directory and its model volume.
func Vars(appDir, modelsRoot string) map[string]string {
	if modelsRoot == "" {
		modelsRoot = filepath.Join(appDir, "models")
	}
	return map[string]string{VarApp: filepath.Clean(appDir), VarModels: filepath.Clean(modelsRoot)}
}

// Default builds the built-in manifest for appDir and modelsRoot.
func Default(appDir, modelsRoot string) (data.Manifest, error) {
	return Build(DefaultRecipe().WithVars(Vars(appDir, modelsRoot)))
}
