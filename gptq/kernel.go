package gptq

// Kernel names for the quantized matmul implementations.
const (
	// KernelExllama handles both the act-order and no act-order cases.
	KernelExllama = "exllama"
	// KernelCUDA is the act-order fallback when exllama is disabled.
	KernelCUDA = "autogptq-cuda"
	// KernelCUDAOld is the no act-order fallback when exllama is
	// disabled.
	KernelCUDAOld = "autogptq-cuda-old"
)

// SelectKernel picks the kernel for a quantized run.
func SelectKernel(disableExllama bool, actOrder bool) string {
	if !disableExllama {
		return KernelExllama
	}
	if actOrder {
		return KernelCUDA
	}
	return KernelCUDAOld
}
