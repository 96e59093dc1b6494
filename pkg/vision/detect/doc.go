/*
Package detect wraps the object detection model.

The Detector interface isolates the pipeline from the inference
backend; the production implementation runs an ONNX YOLO network
through OpenCV's DNN module. Slot enforces the one-model-per-process
rule: the network is loaded on first use and kept until a request
arrives with a different (model path, threshold) key, which evicts and
rebuilds.

Detections route into two sinks by class name; QR and barcode classes
go on to the decode stage, everything else is reported as a general
object.
*/
package detect
