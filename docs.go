/*
Package vkframe paces frames for a Vulkan application and makes sure GPU
objects are only destroyed once the GPU can no longer be using them.

Vulkan leaves both of those problems to the application. The CPU is free to
record frame N+1 while the GPU is still executing frame N, and any buffer,
image or sampler referenced by frame N must outlive it. Destroying such an
object the moment the application is done with it is a use-after-free on the
GPU; waiting for the device to go idle before every destroy throws away the
parallelism.

Frame slots

FrameCycle keeps two frame slots and alternates between them: frame n uses
slot n%2. Each slot owns a fence, an acquire semaphore, a render semaphore,
a primary command buffer and an optional init command buffer. The fence is
signaled when the slot's last submission has finished executing, so waiting
on it at the start of a frame guarantees everything that slot submitted two
frames ago is done.

A frame goes through:

	Idle -> Acquiring -> Recording -> Submitted -> Presented -> Idle

BeginRender waits for the slot's fence, runs the slot's deferred deletes,
acquires a swapchain image and begins the command buffer. EndRender submits
the init buffer (if one was requested), every buffer passed to
QueueBeforeRender, and finally the frame's own buffer, then presents.

Deferred deletion

Handles handed to QueueDelete are parked in a DeletionQueue. While a frame is
recording they go to that frame's slot; otherwise they go to a global queue
which the next frame to begin takes over. Either way the handle is destroyed
the next time the owning slot comes round, after its fence has been waited
on. Within a queue views are destroyed before the objects they view, and
memory is freed last.

	buf, _ := app.Device.CreateBuffer(size, vk.BufferUsageVertexBufferBit)
	...
	buf.QueueDestroy(app)

Native Vulkan structures are exposed on every wrapper under names prefixed
with VK, so applications are not limited to what this package wraps.

GraphicsApp

GraphicsApp wires a device, swapchain, surface render pass and framebuffers
to a FrameCycle, and rebuilds the swapchain when the surface goes stale.
*/
package vkframe
