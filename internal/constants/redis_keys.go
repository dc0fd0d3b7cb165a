package constants

// Redis Key 前缀和格式常量
// 使用统一的命名规范: app:{module}:{entity}:{unique_id}
const (
	// AppPrefix 是所有Redis Key的统一应用前缀
	AppPrefix = "app"

	// MatchModulePrefix 匹配模块
	MatchModulePrefix = "match"
	// JobModulePrefix 岗位模块
	JobModulePrefix = "job"

	// EntityResult 匹配结果实体
	EntityResult = "result"
	// EntityRun 匹配运行实体
	EntityRun = "run"
	// EntityLock 分布式锁实体
	EntityLock = "lock"
	// EntityVector 向量实体
	EntityVector = "vector"

	// KeyMatchResult 匹配结果缓存 (ZSET，member为候选人ID，score为最终分)
	// 格式: app:match:result:{jobID}:{runID}
	KeyMatchResult = AppPrefix + ":" + MatchModulePrefix + ":" + EntityResult + ":%s:%s"

	// KeyMatchResultDetail 匹配结果明细缓存 (HASH，field为候选人ID，value为评分明细JSON)
	// 格式: app:match:result:detail:{jobID}:{runID}
	KeyMatchResultDetail = AppPrefix + ":" + MatchModulePrefix + ":" + EntityResult + ":detail:%s:%s"

	// KeyMatchRunStatus 匹配运行状态 (STRING)
	// 格式: app:match:run:{runID}
	KeyMatchRunStatus = AppPrefix + ":" + MatchModulePrefix + ":" + EntityRun + ":%s"

	// KeyMatchLock 匹配分布式锁，同一岗位同一时刻只允许一次运行 (STRING)
	// 格式: app:match:lock:{jobID}
	KeyMatchLock = AppPrefix + ":" + MatchModulePrefix + ":" + EntityLock + ":%s"

	// KeyJobVector 岗位需求向量缓存 (STRING，JSON编码的float64数组)
	// 格式: app:job:vector:{jobID}
	KeyJobVector = AppPrefix + ":" + JobModulePrefix + ":" + EntityVector + ":%s"
)
