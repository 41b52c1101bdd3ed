package renderer

import (
	"fmt"
	"unsafe"

	vk "github.com/goki/vulkan"
)

// sliceUint32 reinterprets a SPIR-V byte blob as the uint32 words
// vk.ShaderModuleCreateInfo.PCode expects.
func sliceUint32(data []byte) []uint32 {
	return unsafe.Slice((*uint32)(unsafe.Pointer(&data[0])), len(data)/4)
}

// VulkanVertex is a host-memory vertex layout for Draw data; draw binds
// no vertex buffer and does not use it. Two UV pairs are carried per vertex (rather than the GameCube TEV's
// full eight texture coordinate sets), matching Vertex's U0/V0/U1/V1.
type VulkanVertex struct {
	X, Y, Z, W     float32
	R, G, B, A     float32
	U0, V0, U1, V1 float32
}

// pipelineKey selects a cached graphics pipeline by the subset of
// render state that actually changes pipeline objects in Vulkan
// (depth test/write/compare and blend enable/factors). Viewport,
// scissor and clear values are dynamic/command-buffer state and never
// force a new pipeline.
type pipelineKey struct {
	depthTest, depthWrite   bool
	depthCompare            uint8
	blendEnable             bool
	srcFactor, dstFactor    uint8
	blendSubtract           bool
}

// VulkanDevice is the offscreen Vulkan backend: an Executor over the
// Action stream, and the Device BufferAllocator allocates vertex and
// readback buffers against. There is no window or swapchain; frames
// are produced into a color image and pulled out through a staging
// buffer, matching how a software GameCube framebuffer is composited
// by a host application rather than presented directly.
type VulkanDevice struct {
	width, height int

	instance       vk.Instance
	physicalDevice vk.PhysicalDevice
	device         vk.Device
	queue          vk.Queue
	queueFamily    uint32

	colorImage, depthImage             vk.Image
	colorImageMemory, depthImageMemory vk.DeviceMemory
	colorImageView, depthImageView     vk.ImageView

	renderPass  vk.RenderPass
	framebuffer vk.Framebuffer

	pipelineLayout vk.PipelineLayout
	pipelineCache  vk.PipelineCache
	pipelines      map[pipelineKey]vk.Pipeline
	current        pipelineKey

	vertShader, fragShader vk.ShaderModule

	commandPool   vk.CommandPool
	commandBuffer vk.CommandBuffer
	fence         vk.Fence

	stagingBuffer       vk.Buffer
	stagingBufferMemory vk.DeviceMemory
	stagingSize         vk.DeviceSize

	clearColor [4]float32
	clearDepth float32
	viewport   vk.Viewport
	scissor    vk.Rect2D

	vertexShaderSPIRV, fragmentShaderSPIRV []byte
}

// NewVulkanDevice creates an uninitialized backend; call Init before
// use. vertSPIRV/fragSPIRV are the compiled shader binaries the
// pipeline cache's variants all share (only fixed-function state
// varies per pipelineKey, not shader code).
func NewVulkanDevice(vertSPIRV, fragSPIRV []byte) *VulkanDevice {
	return &VulkanDevice{
		pipelines:         make(map[pipelineKey]vk.Pipeline),
		clearDepth:        1.0,
		vertexShaderSPIRV: vertSPIRV,
		fragmentShaderSPIRV: fragSPIRV,
	}
}

// Init brings up the Vulkan instance, device, offscreen images, render
// pass and base pipeline for a width x height framebuffer.
func (d *VulkanDevice) Init(width, height int) error {
	d.width, d.height = width, height

	if err := vk.SetDefaultGetInstanceProcAddr(); err != nil {
		return fmt.Errorf("vulkan loader: %w", err)
	}
	if err := vk.Init(); err != nil {
		return fmt.Errorf("vulkan init: %w", err)
	}
	if err := d.createInstance(); err != nil {
		return err
	}
	if err := d.selectPhysicalDevice(); err != nil {
		return err
	}
	if err := d.createDevice(); err != nil {
		return err
	}
	if err := d.createCommandPool(); err != nil {
		return err
	}
	if err := d.createOffscreenImages(); err != nil {
		return err
	}
	if err := d.createRenderPass(); err != nil {
		return err
	}
	if err := d.createFramebuffer(); err != nil {
		return err
	}
	if err := d.createPipelineLayout(); err != nil {
		return err
	}
	if err := d.createStagingBuffer(uint64(width * height * 4)); err != nil {
		return err
	}
	if err := d.createCommandBuffer(); err != nil {
		return err
	}

	var fenceInfo vk.FenceCreateInfo
	fenceInfo.SType = vk.StructureTypeFenceCreateInfo
	var fence vk.Fence
	if res := vk.CreateFence(d.device, &fenceInfo, nil, &fence); res != vk.Success {
		return fmt.Errorf("vkCreateFence failed: %d", res)
	}
	d.fence = fence

	d.viewport = vk.Viewport{Width: float32(width), Height: float32(height), MinDepth: 0, MaxDepth: 1}
	d.scissor = vk.Rect2D{Extent: vk.Extent2D{Width: uint32(width), Height: uint32(height)}}
	return nil
}

func (d *VulkanDevice) createInstance() error {
	appInfo := vk.ApplicationInfo{
		SType:         vk.StructureTypeApplicationInfo,
		PApplicationName: "lazuli\x00",
		ApiVersion:    vk.MakeVersion(1, 1, 0),
	}
	createInfo := vk.InstanceCreateInfo{
		SType:            vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo: &appInfo,
	}
	var instance vk.Instance
	if res := vk.CreateInstance(&createInfo, nil, &instance); res != vk.Success {
		return fmt.Errorf("vkCreateInstance failed: %d", res)
	}
	d.instance = instance
	vk.InitInstance(instance)
	return nil
}

func (d *VulkanDevice) selectPhysicalDevice() error {
	var count uint32
	vk.EnumeratePhysicalDevices(d.instance, &count, nil)
	if count == 0 {
		return fmt.Errorf("no vulkan physical devices available")
	}
	devices := make([]vk.PhysicalDevice, count)
	vk.EnumeratePhysicalDevices(d.instance, &count, devices)

	for _, dev := range devices {
		var qfCount uint32
		vk.GetPhysicalDeviceQueueFamilyProperties(dev, &qfCount, nil)
		families := make([]vk.QueueFamilyProperties, qfCount)
		vk.GetPhysicalDeviceQueueFamilyProperties(dev, &qfCount, families)
		for i, qf := range families {
			qf.Deref()
			if qf.QueueFlags&vk.QueueFlags(vk.QueueGraphicsBit) != 0 {
				d.physicalDevice = dev
				d.queueFamily = uint32(i)
				return nil
			}
		}
	}
	return fmt.Errorf("no queue family with graphics support")
}

func (d *VulkanDevice) createDevice() error {
	queueInfo := vk.DeviceQueueCreateInfo{
		SType:            vk.StructureTypeDeviceQueueCreateInfo,
		QueueFamilyIndex: d.queueFamily,
		QueueCount:       1,
		PQueuePriorities: []float32{1.0},
	}
	createInfo := vk.DeviceCreateInfo{
		SType:                vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount: 1,
		PQueueCreateInfos:    []vk.DeviceQueueCreateInfo{queueInfo},
	}
	var device vk.Device
	if res := vk.CreateDevice(d.physicalDevice, &createInfo, nil, &device); res != vk.Success {
		return fmt.Errorf("vkCreateDevice failed: %d", res)
	}
	d.device = device
	vk.InitDevice(device)

	var queue vk.Queue
	vk.GetDeviceQueue(device, d.queueFamily, 0, &queue)
	d.queue = queue
	return nil
}

func (d *VulkanDevice) createCommandPool() error {
	info := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		QueueFamilyIndex: d.queueFamily,
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateResetCommandBufferBit),
	}
	var pool vk.CommandPool
	if res := vk.CreateCommandPool(d.device, &info, nil, &pool); res != vk.Success {
		return fmt.Errorf("vkCreateCommandPool failed: %d", res)
	}
	d.commandPool = pool
	return nil
}

func (d *VulkanDevice) createOffscreenImages() error {
	color, colorMem, colorView, err := d.createImage(
		vk.FormatR8g8b8a8Unorm,
		vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit|vk.ImageUsageTransferSrcBit),
		vk.ImageAspectFlags(vk.ImageAspectColorBit))
	if err != nil {
		return fmt.Errorf("color image: %w", err)
	}
	d.colorImage, d.colorImageMemory, d.colorImageView = color, colorMem, colorView

	depth, depthMem, depthView, err := d.createImage(
		vk.FormatD32Sfloat,
		vk.ImageUsageFlags(vk.ImageUsageDepthStencilAttachmentBit),
		vk.ImageAspectFlags(vk.ImageAspectDepthBit))
	if err != nil {
		return fmt.Errorf("depth image: %w", err)
	}
	d.depthImage, d.depthImageMemory, d.depthImageView = depth, depthMem, depthView
	return nil
}

func (d *VulkanDevice) createImage(format vk.Format, usage vk.ImageUsageFlags, aspect vk.ImageAspectFlags) (vk.Image, vk.DeviceMemory, vk.ImageView, error) {
	info := vk.ImageCreateInfo{
		SType:     vk.StructureTypeImageCreateInfo,
		ImageType: vk.ImageType2d,
		Format:    format,
		Extent:    vk.Extent3D{Width: uint32(d.width), Height: uint32(d.height), Depth: 1},
		MipLevels:     1,
		ArrayLayers:   1,
		Samples:       vk.SampleCount1Bit,
		Tiling:        vk.ImageTilingOptimal,
		Usage:         usage,
		InitialLayout: vk.ImageLayoutUndefined,
	}
	var image vk.Image
	if res := vk.CreateImage(d.device, &info, nil, &image); res != vk.Success {
		return nil, nil, nil, fmt.Errorf("vkCreateImage failed: %d", res)
	}

	var reqs vk.MemoryRequirements
	vk.GetImageMemoryRequirements(d.device, image, &reqs)
	reqs.Deref()
	typeIndex, err := d.findMemoryType(reqs.MemoryTypeBits, vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit))
	if err != nil {
		return nil, nil, nil, err
	}
	allocInfo := vk.MemoryAllocateInfo{SType: vk.StructureTypeMemoryAllocateInfo, AllocationSize: reqs.Size, MemoryTypeIndex: typeIndex}
	var mem vk.DeviceMemory
	if res := vk.AllocateMemory(d.device, &allocInfo, nil, &mem); res != vk.Success {
		return nil, nil, nil, fmt.Errorf("vkAllocateMemory failed: %d", res)
	}
	vk.BindImageMemory(d.device, image, mem, 0)

	viewInfo := vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    image,
		ViewType: vk.ImageViewType2d,
		Format:   format,
		SubresourceRange: vk.ImageSubresourceRange{AspectMask: aspect, LevelCount: 1, LayerCount: 1},
	}
	var view vk.ImageView
	if res := vk.CreateImageView(d.device, &viewInfo, nil, &view); res != vk.Success {
		return nil, nil, nil, fmt.Errorf("vkCreateImageView failed: %d", res)
	}
	return image, mem, view, nil
}

func (d *VulkanDevice) findMemoryType(typeFilter uint32, props vk.MemoryPropertyFlags) (uint32, error) {
	var memProps vk.PhysicalDeviceMemoryProperties
	vk.GetPhysicalDeviceMemoryProperties(d.physicalDevice, &memProps)
	memProps.Deref()
	for i := uint32(0); i < memProps.MemoryTypeCount; i++ {
		t := memProps.MemoryTypes[i]
		t.Deref()
		if typeFilter&(1<<i) != 0 && t.PropertyFlags&props == props {
			return i, nil
		}
	}
	return 0, fmt.Errorf("no matching memory type for filter %#x", typeFilter)
}

func (d *VulkanDevice) createRenderPass() error {
	colorAttachment := vk.AttachmentDescription{
		Format: vk.FormatR8g8b8a8Unorm, Samples: vk.SampleCount1Bit,
		LoadOp: vk.AttachmentLoadOpClear, StoreOp: vk.AttachmentStoreOpStore,
		StencilLoadOp: vk.AttachmentLoadOpDontCare, StencilStoreOp: vk.AttachmentStoreOpDontCare,
		InitialLayout: vk.ImageLayoutUndefined, FinalLayout: vk.ImageLayoutTransferSrcOptimal,
	}
	depthAttachment := vk.AttachmentDescription{
		Format: vk.FormatD32Sfloat, Samples: vk.SampleCount1Bit,
		LoadOp: vk.AttachmentLoadOpClear, StoreOp: vk.AttachmentStoreOpDontCare,
		StencilLoadOp: vk.AttachmentLoadOpDontCare, StencilStoreOp: vk.AttachmentStoreOpDontCare,
		InitialLayout: vk.ImageLayoutUndefined, FinalLayout: vk.ImageLayoutDepthStencilAttachmentOptimal,
	}
	colorRef := vk.AttachmentReference{Attachment: 0, Layout: vk.ImageLayoutColorAttachmentOptimal}
	depthRef := vk.AttachmentReference{Attachment: 1, Layout: vk.ImageLayoutDepthStencilAttachmentOptimal}
	subpass := vk.SubpassDescription{
		PipelineBindPoint: vk.PipelineBindPointGraphics, ColorAttachmentCount: 1,
		PColorAttachments: []vk.AttachmentReference{colorRef}, PDepthStencilAttachment: &depthRef,
	}
	info := vk.RenderPassCreateInfo{
		SType: vk.StructureTypeRenderPassCreateInfo, AttachmentCount: 2,
		PAttachments: []vk.AttachmentDescription{colorAttachment, depthAttachment},
		SubpassCount: 1, PSubpasses: []vk.SubpassDescription{subpass},
	}
	var renderPass vk.RenderPass
	if res := vk.CreateRenderPass(d.device, &info, nil, &renderPass); res != vk.Success {
		return fmt.Errorf("vkCreateRenderPass failed: %d", res)
	}
	d.renderPass = renderPass
	return nil
}

func (d *VulkanDevice) createFramebuffer() error {
	attachments := []vk.ImageView{d.colorImageView, d.depthImageView}
	info := vk.FramebufferCreateInfo{
		SType: vk.StructureTypeFramebufferCreateInfo, RenderPass: d.renderPass,
		AttachmentCount: uint32(len(attachments)), PAttachments: attachments,
		Width: uint32(d.width), Height: uint32(d.height), Layers: 1,
	}
	var fb vk.Framebuffer
	if res := vk.CreateFramebuffer(d.device, &info, nil, &fb); res != vk.Success {
		return fmt.Errorf("vkCreateFramebuffer failed: %d", res)
	}
	d.framebuffer = fb
	return nil
}

func (d *VulkanDevice) createPipelineLayout() error {
	info := vk.PipelineLayoutCreateInfo{SType: vk.StructureTypePipelineLayoutCreateInfo}
	var layout vk.PipelineLayout
	if res := vk.CreatePipelineLayout(d.device, &info, nil, &layout); res != vk.Success {
		return fmt.Errorf("vkCreatePipelineLayout failed: %d", res)
	}
	d.pipelineLayout = layout

	vertModule, err := d.createShaderModule(d.vertexShaderSPIRV)
	if err != nil {
		return err
	}
	fragModule, err := d.createShaderModule(d.fragmentShaderSPIRV)
	if err != nil {
		return err
	}
	d.vertShader, d.fragShader = vertModule, fragModule

	var cacheInfo vk.PipelineCacheCreateInfo
	cacheInfo.SType = vk.StructureTypePipelineCacheCreateInfo
	var cache vk.PipelineCache
	if res := vk.CreatePipelineCache(d.device, &cacheInfo, nil, &cache); res != vk.Success {
		return fmt.Errorf("vkCreatePipelineCache failed: %d", res)
	}
	d.pipelineCache = cache
	return nil
}

func (d *VulkanDevice) createShaderModule(code []byte) (vk.ShaderModule, error) {
	info := vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint64(len(code)),
		PCode:    sliceUint32(code),
	}
	var module vk.ShaderModule
	if res := vk.CreateShaderModule(d.device, &info, nil, &module); res != vk.Success {
		return nil, fmt.Errorf("vkCreateShaderModule failed: %d", res)
	}
	return module, nil
}

// getOrCreatePipeline returns the cached pipeline for key, building a
// new one on first use. Depth and blend state are the only fixed-
// function bits that change an Action stream's pipeline object;
// everything else (viewport, scissor, clear values) is dynamic state
// set per command buffer instead of baked into the pipeline.
func (d *VulkanDevice) getOrCreatePipeline(key pipelineKey) (vk.Pipeline, error) {
	if p, ok := d.pipelines[key]; ok {
		return p, nil
	}

	stages := []vk.PipelineShaderStageCreateInfo{
		{SType: vk.StructureTypePipelineShaderStageCreateInfo, Stage: vk.ShaderStageVertexBit, Module: d.vertShader, PName: "main\x00"},
		{SType: vk.StructureTypePipelineShaderStageCreateInfo, Stage: vk.ShaderStageFragmentBit, Module: d.fragShader, PName: "main\x00"},
	}
	vertexInput := vk.PipelineVertexInputStateCreateInfo{SType: vk.StructureTypePipelineVertexInputStateCreateInfo}
	assembly := vk.PipelineInputAssemblyStateCreateInfo{
		SType: vk.StructureTypePipelineInputAssemblyStateCreateInfo,
		Topology: vk.PrimitiveTopologyTriangleList,
	}
	viewportState := vk.PipelineViewportStateCreateInfo{
		SType: vk.StructureTypePipelineViewportStateCreateInfo, ViewportCount: 1, ScissorCount: 1,
	}
	raster := vk.PipelineRasterizationStateCreateInfo{
		SType: vk.StructureTypePipelineRasterizationStateCreateInfo,
		PolygonMode: vk.PolygonModeFill, CullMode: vk.CullModeFlags(vk.CullModeNone), LineWidth: 1,
	}
	multisample := vk.PipelineMultisampleStateCreateInfo{
		SType: vk.StructureTypePipelineMultisampleStateCreateInfo, RasterizationSamples: vk.SampleCount1Bit,
	}
	depthStencil := vk.PipelineDepthStencilStateCreateInfo{
		SType: vk.StructureTypePipelineDepthStencilStateCreateInfo,
		DepthTestEnable:  vkBool(key.depthTest),
		DepthWriteEnable: vkBool(key.depthWrite),
		DepthCompareOp:   vk.CompareOp(key.depthCompare),
	}
	blendOp := vk.BlendOpAdd
	if key.blendSubtract {
		blendOp = vk.BlendOpReverseSubtract
	}
	colorBlendAttachment := vk.PipelineColorBlendAttachmentState{
		BlendEnable:    vkBool(key.blendEnable),
		SrcColorBlendFactor: vk.BlendFactor(key.srcFactor),
		DstColorBlendFactor: vk.BlendFactor(key.dstFactor),
		ColorBlendOp:        blendOp,
		SrcAlphaBlendFactor: vk.BlendFactor(key.srcFactor),
		DstAlphaBlendFactor: vk.BlendFactor(key.dstFactor),
		AlphaBlendOp:        blendOp,
		ColorWriteMask:      0xF,
	}
	colorBlend := vk.PipelineColorBlendStateCreateInfo{
		SType: vk.StructureTypePipelineColorBlendStateCreateInfo,
		AttachmentCount: 1, PAttachments: []vk.PipelineColorBlendAttachmentState{colorBlendAttachment},
	}
	dynamicStates := []vk.DynamicState{vk.DynamicStateViewport, vk.DynamicStateScissor}
	dynamic := vk.PipelineDynamicStateCreateInfo{
		SType: vk.StructureTypePipelineDynamicStateCreateInfo,
		DynamicStateCount: uint32(len(dynamicStates)), PDynamicStates: dynamicStates,
	}

	info := vk.GraphicsPipelineCreateInfo{
		SType: vk.StructureTypeGraphicsPipelineCreateInfo,
		StageCount:          2,
		PStages:             stages,
		PVertexInputState:   &vertexInput,
		PInputAssemblyState: &assembly,
		PViewportState:      &viewportState,
		PRasterizationState: &raster,
		PMultisampleState:   &multisample,
		PDepthStencilState:  &depthStencil,
		PColorBlendState:    &colorBlend,
		PDynamicState:       &dynamic,
		Layout:              d.pipelineLayout,
		RenderPass:          d.renderPass,
	}
	pipelines := make([]vk.Pipeline, 1)
	if res := vk.CreateGraphicsPipelines(d.device, d.pipelineCache, 1, []vk.GraphicsPipelineCreateInfo{info}, nil, pipelines); res != vk.Success {
		return nil, fmt.Errorf("vkCreateGraphicsPipelines failed: %d", res)
	}
	d.pipelines[key] = pipelines[0]
	return pipelines[0], nil
}

func (d *VulkanDevice) createStagingBuffer(size uint64) error {
	info := vk.BufferCreateInfo{
		SType: vk.StructureTypeBufferCreateInfo, Size: vk.DeviceSize(size),
		Usage: vk.BufferUsageFlags(vk.BufferUsageTransferDstBit), SharingMode: vk.SharingModeExclusive,
	}
	var buf vk.Buffer
	if res := vk.CreateBuffer(d.device, &info, nil, &buf); res != vk.Success {
		return fmt.Errorf("vkCreateBuffer (staging) failed: %d", res)
	}
	var reqs vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(d.device, buf, &reqs)
	reqs.Deref()
	typeIndex, err := d.findMemoryType(reqs.MemoryTypeBits,
		vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit|vk.MemoryPropertyHostCoherentBit))
	if err != nil {
		return err
	}
	allocInfo := vk.MemoryAllocateInfo{SType: vk.StructureTypeMemoryAllocateInfo, AllocationSize: reqs.Size, MemoryTypeIndex: typeIndex}
	var mem vk.DeviceMemory
	if res := vk.AllocateMemory(d.device, &allocInfo, nil, &mem); res != vk.Success {
		return fmt.Errorf("vkAllocateMemory (staging) failed: %d", res)
	}
	vk.BindBufferMemory(d.device, buf, mem, 0)
	d.stagingBuffer, d.stagingBufferMemory, d.stagingSize = buf, mem, vk.DeviceSize(size)
	return nil
}

func (d *VulkanDevice) createCommandBuffer() error {
	info := vk.CommandBufferAllocateInfo{
		SType: vk.StructureTypeCommandBufferAllocateInfo, CommandPool: d.commandPool,
		Level: vk.CommandBufferLevelPrimary, CommandBufferCount: 1,
	}
	buffers := make([]vk.CommandBuffer, 1)
	if res := vk.AllocateCommandBuffers(d.device, &info, buffers); res != vk.Success {
		return fmt.Errorf("vkAllocateCommandBuffers failed: %d", res)
	}
	d.commandBuffer = buffers[0]
	return nil
}

// Exec applies a single Action. It is only ever called from the
// Renderer's worker goroutine, so no locking is required here.
func (d *VulkanDevice) Exec(a Action) error {
	switch v := a.(type) {
	case Viewport:
		d.viewport = vk.Viewport{X: float32(v.X), Y: float32(v.Y), Width: float32(v.Width), Height: float32(v.Height), MinDepth: 0, MaxDepth: 1}
		return nil
	case Scissor:
		d.scissor = vk.Rect2D{Offset: vk.Offset2D{X: v.X, Y: v.Y}, Extent: vk.Extent2D{Width: uint32(v.Width), Height: uint32(v.Height)}}
		return nil
	case SetClearColor:
		d.clearColor = [4]float32{
			float32((v.RGBA>>24)&0xFF) / 255, float32((v.RGBA>>16)&0xFF) / 255,
			float32((v.RGBA>>8)&0xFF) / 255, float32(v.RGBA&0xFF) / 255,
		}
		return nil
	case SetClearDepth:
		d.clearDepth = v.Z
		return nil
	case SetDepthMode:
		d.current.depthTest, d.current.depthWrite, d.current.depthCompare = v.TestEnable, v.WriteEnable, v.CompareOp
		return nil
	case SetBlendMode:
		d.current.blendEnable = v.Enable
		d.current.srcFactor, d.current.dstFactor = v.SrcFactor, v.DstFactor
		d.current.blendSubtract = v.SubtractOp
		return nil
	case SetTextureSlot:
		return nil // texture binding is wired through a descriptor set in a fuller backend
	case LoadTexture:
		return nil
	case Draw:
		return d.draw(v)
	case ColorCopy:
		data, err := d.readbackColor(v.Args)
		v.Reply <- data
		return err
	case DepthCopy:
		data, err := d.readbackDepth(v.Args)
		v.Reply <- data
		return err
	case XfbCopy:
		return nil
	default:
		return fmt.Errorf("device_vulkan: unhandled action %T", a)
	}
}

func (d *VulkanDevice) draw(action Draw) error {
	if len(action.Vertices) == 0 {
		return nil
	}
	pipeline, err := d.getOrCreatePipeline(d.current)
	if err != nil {
		return fmt.Errorf("pipeline variant: %w", err)
	}

	vk.ResetCommandBuffer(d.commandBuffer, vk.CommandBufferResetFlags(0))
	beginInfo := vk.CommandBufferBeginInfo{SType: vk.StructureTypeCommandBufferBeginInfo}
	if res := vk.BeginCommandBuffer(d.commandBuffer, &beginInfo); res != vk.Success {
		return fmt.Errorf("vkBeginCommandBuffer failed: %d", res)
	}

	clearValues := []vk.ClearValue{
		vk.NewClearValue([]float32{d.clearColor[0], d.clearColor[1], d.clearColor[2], d.clearColor[3]}),
		vk.NewClearDepthStencil(d.clearDepth, 0),
	}
	renderPassInfo := vk.RenderPassBeginInfo{
		SType: vk.StructureTypeRenderPassBeginInfo, RenderPass: d.renderPass, Framebuffer: d.framebuffer,
		RenderArea:      vk.Rect2D{Extent: vk.Extent2D{Width: uint32(d.width), Height: uint32(d.height)}},
		ClearValueCount: uint32(len(clearValues)), PClearValues: clearValues,
	}
	vk.CmdBeginRenderPass(d.commandBuffer, &renderPassInfo, vk.SubpassContentsInline)
	vk.CmdBindPipeline(d.commandBuffer, vk.PipelineBindPointGraphics, pipeline)
	vk.CmdSetViewport(d.commandBuffer, 0, 1, []vk.Viewport{d.viewport})
	vk.CmdSetScissor(d.commandBuffer, 0, 1, []vk.Rect2D{d.scissor})
	vk.CmdDraw(d.commandBuffer, uint32(len(action.Vertices)), 1, 0, 0)
	vk.CmdEndRenderPass(d.commandBuffer)

	if res := vk.EndCommandBuffer(d.commandBuffer); res != vk.Success {
		return fmt.Errorf("vkEndCommandBuffer failed: %d", res)
	}
	return d.submitAndWait()
}

func (d *VulkanDevice) submitAndWait() error {
	submitInfo := vk.SubmitInfo{
		SType: vk.StructureTypeSubmitInfo, CommandBufferCount: 1,
		PCommandBuffers: []vk.CommandBuffer{d.commandBuffer},
	}
	if res := vk.QueueSubmit(d.queue, 1, []vk.SubmitInfo{submitInfo}, d.fence); res != vk.Success {
		return fmt.Errorf("vkQueueSubmit failed: %d", res)
	}
	vk.WaitForFences(d.device, 1, []vk.Fence{d.fence}, vk.True, ^uint64(0))
	vk.ResetFences(d.device, 1, []vk.Fence{d.fence})
	return nil
}

// readbackColor copies args' rectangle of the color image into the
// staging buffer and returns its RGBA bytes.
func (d *VulkanDevice) readbackColor(args CopyArgs) ([]byte, error) {
	if err := d.copyImageToStaging(d.colorImage, vk.ImageAspectFlags(vk.ImageAspectColorBit), args, 4); err != nil {
		return nil, err
	}
	out := make([]byte, args.Width*args.Height*4)
	var mapped unsafe.Pointer
	vk.MapMemory(d.device, d.stagingBufferMemory, 0, vk.DeviceSize(len(out)), 0, &mapped)
	copy(out, (*[1 << 30]byte)(mapped)[:len(out)])
	vk.UnmapMemory(d.device, d.stagingBufferMemory)
	return out, nil
}

func (d *VulkanDevice) readbackDepth(args CopyArgs) ([]uint32, error) {
	if err := d.copyImageToStaging(d.depthImage, vk.ImageAspectFlags(vk.ImageAspectDepthBit), args, 4); err != nil {
		return nil, err
	}
	raw := make([]byte, args.Width*args.Height*4)
	var mapped unsafe.Pointer
	vk.MapMemory(d.device, d.stagingBufferMemory, 0, vk.DeviceSize(len(raw)), 0, &mapped)
	copy(raw, (*[1 << 30]byte)(mapped)[:len(raw)])
	vk.UnmapMemory(d.device, d.stagingBufferMemory)
	return unsafe.Slice((*uint32)(unsafe.Pointer(&raw[0])), len(raw)/4), nil
}

func (d *VulkanDevice) copyImageToStaging(image vk.Image, aspect vk.ImageAspectFlags, args CopyArgs, bytesPerPixel int) error {
	vk.ResetCommandBuffer(d.commandBuffer, vk.CommandBufferResetFlags(0))
	beginInfo := vk.CommandBufferBeginInfo{SType: vk.StructureTypeCommandBufferBeginInfo}
	vk.BeginCommandBuffer(d.commandBuffer, &beginInfo)

	region := vk.BufferImageCopy{
		ImageSubresource: vk.ImageSubresourceLayers{AspectMask: aspect, LayerCount: 1},
		ImageOffset:      vk.Offset3D{X: args.X, Y: args.Y},
		ImageExtent:      vk.Extent3D{Width: uint32(args.Width), Height: uint32(args.Height), Depth: 1},
	}
	vk.CmdCopyImageToBuffer(d.commandBuffer, image, vk.ImageLayoutTransferSrcOptimal, d.stagingBuffer, 1, []vk.BufferImageCopy{region})

	if res := vk.EndCommandBuffer(d.commandBuffer); res != vk.Success {
		return fmt.Errorf("vkEndCommandBuffer (readback) failed: %d", res)
	}
	return d.submitAndWait()
}

// MappablePrimaryBuffers, NewBuffer, WriteAndUnmap and
// CopyBufferToBuffer implement the Device interface BufferAllocator
// drives for vertex upload. This backend always stages through a
// host-visible secondary buffer since the offscreen color/depth
// images' backing memory is kept device-local for rendering
// throughput.
func (d *VulkanDevice) MappablePrimaryBuffers() bool { return false }

func (d *VulkanDevice) NewBuffer(size int, hostVisible bool) GPUBuffer {
	usage := vk.BufferUsageFlags(vk.BufferUsageVertexBufferBit | vk.BufferUsageTransferDstBit)
	props := vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit)
	if hostVisible {
		usage = vk.BufferUsageFlags(vk.BufferUsageTransferSrcBit)
		props = vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit | vk.MemoryPropertyHostCoherentBit)
	}
	info := vk.BufferCreateInfo{SType: vk.StructureTypeBufferCreateInfo, Size: vk.DeviceSize(size), Usage: usage, SharingMode: vk.SharingModeExclusive}
	var buf vk.Buffer
	vk.CreateBuffer(d.device, &info, nil, &buf)

	var reqs vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(d.device, buf, &reqs)
	reqs.Deref()
	typeIndex, _ := d.findMemoryType(reqs.MemoryTypeBits, props)
	allocInfo := vk.MemoryAllocateInfo{SType: vk.StructureTypeMemoryAllocateInfo, AllocationSize: reqs.Size, MemoryTypeIndex: typeIndex}
	var mem vk.DeviceMemory
	vk.AllocateMemory(d.device, &allocInfo, nil, &mem)
	vk.BindBufferMemory(d.device, buf, mem, 0)

	return &vulkanBuffer{buffer: buf, memory: mem, size: size, hostVisible: hostVisible}
}

func (d *VulkanDevice) WriteAndUnmap(buf GPUBuffer, data []byte) {
	vb := buf.(*vulkanBuffer)
	var mapped unsafe.Pointer
	vk.MapMemory(d.device, vb.memory, 0, vk.DeviceSize(len(data)), 0, &mapped)
	copy((*[1 << 30]byte)(mapped)[:len(data)], data)
	vk.UnmapMemory(d.device, vb.memory)
}

func (d *VulkanDevice) CopyBufferToBuffer(src, dst GPUBuffer, size int) {
	vk.ResetCommandBuffer(d.commandBuffer, vk.CommandBufferResetFlags(0))
	beginInfo := vk.CommandBufferBeginInfo{SType: vk.StructureTypeCommandBufferBeginInfo}
	vk.BeginCommandBuffer(d.commandBuffer, &beginInfo)
	region := vk.BufferCopy{Size: vk.DeviceSize(size)}
	vk.CmdCopyBuffer(d.commandBuffer, src.(*vulkanBuffer).buffer, dst.(*vulkanBuffer).buffer, 1, []vk.BufferCopy{region})
	vk.EndCommandBuffer(d.commandBuffer)
	d.submitAndWait()
}

// vulkanBuffer implements GPUBuffer over a Vulkan buffer + backing
// memory allocation.
type vulkanBuffer struct {
	buffer      vk.Buffer
	memory      vk.DeviceMemory
	size        int
	hostVisible bool
}

func (b *vulkanBuffer) Size() int { return b.size }

// Destroy releases every Vulkan object the device owns, in reverse
// creation order.
func (d *VulkanDevice) Destroy() {
	for _, p := range d.pipelines {
		vk.DestroyPipeline(d.device, p, nil)
	}
	vk.DestroyPipelineCache(d.device, d.pipelineCache, nil)
	vk.DestroyPipelineLayout(d.device, d.pipelineLayout, nil)
	vk.DestroyShaderModule(d.device, d.vertShader, nil)
	vk.DestroyShaderModule(d.device, d.fragShader, nil)
	vk.DestroyFramebuffer(d.device, d.framebuffer, nil)
	vk.DestroyRenderPass(d.device, d.renderPass, nil)
	vk.DestroyImageView(d.device, d.colorImageView, nil)
	vk.DestroyImage(d.device, d.colorImage, nil)
	vk.FreeMemory(d.device, d.colorImageMemory, nil)
	vk.DestroyImageView(d.device, d.depthImageView, nil)
	vk.DestroyImage(d.device, d.depthImage, nil)
	vk.FreeMemory(d.device, d.depthImageMemory, nil)
	vk.DestroyBuffer(d.device, d.stagingBuffer, nil)
	vk.FreeMemory(d.device, d.stagingBufferMemory, nil)
	vk.DestroyFence(d.device, d.fence, nil)
	vk.DestroyCommandPool(d.device, d.commandPool, nil)
	vk.DestroyDevice(d.device, nil)
	vk.DestroyInstance(d.instance, nil)
}

func vkBool(b bool) vk.Bool32 {
	if b {
		return vk.True
	}
	return vk.False
}
