package breaker

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ========================================
// 客户端拦截器 (Client Interceptor)
// ========================================

// KeyFunc 从调用上下文提取熔断键
type KeyFunc func(ctx context.Context, fullMethod string) string

// defaultGRPCKeyFunc 默认使用完整方法名作为熔断键
func defaultGRPCKeyFunc(ctx context.Context, fullMethod string) string {
	return fullMethod
}

// UnaryClientInterceptor 返回 gRPC 一元调用客户端拦截器
// 每个熔断键对应组内一个独立的熔断器，熔断打开时返回 codes.Unavailable
//
// 参数:
//   - group: 熔断器组
//   - keyFunc: 从请求中提取熔断键的函数，如果为 nil，默认使用 fullMethod
//
// 使用示例:
//
//	group := breaker.NewGroup(&breaker.Config{FailureThreshold: 5})
//	conn, _ := grpc.Dial(
//	    "localhost:9001",
//	    grpc.WithUnaryInterceptor(breaker.UnaryClientInterceptor(group, nil)),
//	)
func UnaryClientInterceptor(group *Group, keyFunc KeyFunc) grpc.UnaryClientInterceptor {
	if keyFunc == nil {
		keyFunc = defaultGRPCKeyFunc
	}

	return func(ctx context.Context, method string, req, reply interface{}, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		if group == nil {
			return invoker(ctx, method, req, reply, cc, opts...)
		}

		cb := group.Get(keyFunc(ctx, method))
		err := cb.Do(ctx, func(ctx context.Context) error {
			return invoker(ctx, method, req, reply, cc, opts...)
		})
		if IsOpen(err) {
			return status.Error(codes.Unavailable, err.Error())
		}
		return err
	}
}

// StreamClientInterceptor 返回 gRPC 流式调用客户端拦截器
// 熔断检查发生在建立流的时刻，流内消息不重复检查
func StreamClientInterceptor(group *Group, keyFunc KeyFunc) grpc.StreamClientInterceptor {
	if keyFunc == nil {
		keyFunc = defaultGRPCKeyFunc
	}

	return func(ctx context.Context, desc *grpc.StreamDesc, cc *grpc.ClientConn, method string, streamer grpc.Streamer, opts ...grpc.CallOption) (grpc.ClientStream, error) {
		if group == nil {
			return streamer(ctx, desc, cc, method, opts...)
		}

		cb := group.Get(keyFunc(ctx, method))

		// 流的生命周期长于熔断器的调用窗口，建立流时使用原始 ctx，
		// CallTimeout 只约束建立流的等待时间
		var stream grpc.ClientStream
		err := cb.Do(ctx, func(context.Context) error {
			var streamErr error
			stream, streamErr = streamer(ctx, desc, cc, method, opts...)
			return streamErr
		})
		if IsOpen(err) {
			return nil, status.Error(codes.Unavailable, err.Error())
		}
		if err != nil {
			return nil, err
		}
		return stream, nil
	}
}
